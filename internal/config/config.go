// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/trenderlabs/trender/internal/curve"
	"github.com/trenderlabs/trender/internal/logger"
	"github.com/trenderlabs/trender/internal/program"
	"github.com/trenderlabs/trender/internal/types"
)

type Config struct {
	ProgramID         string         `mapstructure:"program_id"`
	TreasuryAuthority string         `mapstructure:"treasury_authority"`
	Fees              FeeConfig      `mapstructure:"fees"`
	Limits            LimitConfig    `mapstructure:"limits"`
	BusBuffer         int            `mapstructure:"bus_buffer"`
	AsyncEvents       bool           `mapstructure:"async_events"`
	Log               LogConfig      `mapstructure:"log"`
	TradeLog          TradeLogConfig `mapstructure:"tradelog"`
	Client            ClientConfig   `mapstructure:"client"`
	Metrics           MetricsConfig  `mapstructure:"metrics"`
	WalletsFile       string         `mapstructure:"wallets_file"`
}

type FeeConfig struct {
	InitBps    uint64 `mapstructure:"init_bps"`
	BuyBps     uint64 `mapstructure:"buy_bps"`
	SellBps    uint64 `mapstructure:"sell_bps"`
	ReleaseBps uint64 `mapstructure:"release_bps"`
}

type LimitConfig struct {
	MinDeposit uint64 `mapstructure:"min_deposit"`
	MinTrade   uint64 `mapstructure:"min_trade"`
}

type LogConfig struct {
	File        string `mapstructure:"file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxAge      int    `mapstructure:"max_age"`
	MaxBackups  int    `mapstructure:"max_backups"`
	Compress    bool   `mapstructure:"compress"`
	Development bool   `mapstructure:"development"`
	Pretty      bool   `mapstructure:"pretty"`
}

type TradeLogConfig struct {
	SQLitePath     string        `mapstructure:"sqlite_path"`
	JournalPath    string        `mapstructure:"journal_path"`
	CandleInterval time.Duration `mapstructure:"candle_interval"`
	ExportDir      string        `mapstructure:"export_dir"`
}

type ClientConfig struct {
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	SlippagePercent float64       `mapstructure:"slippage_percent"`
	ReadAttempts    uint          `mapstructure:"read_attempts"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

const (
	DefaultProgramID       = "9ZFKHrBrA2YC19eLvuCM4kjabjXFqphYJs8PxgeeSG7S"
	DefaultBusBuffer       = 256
	DefaultCandleInterval  = 5 * time.Minute
	DefaultSettleDelay     = 2 * time.Second
	DefaultSlippagePercent = 1.0
	DefaultReadAttempts    = 3
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"program_id":               DefaultProgramID,
		"treasury_authority":       "",
		"async_events":             false,
		"wallets_file":             "",
		"metrics.listen":           "",
		"fees.init_bps":            program.DefaultFees.InitBps,
		"fees.buy_bps":             program.DefaultFees.BuyBps,
		"fees.sell_bps":            program.DefaultFees.SellBps,
		"fees.release_bps":         program.DefaultFees.ReleaseBps,
		"limits.min_deposit":       program.DefaultMinDeposit,
		"limits.min_trade":         program.DefaultMinTrade,
		"bus_buffer":               DefaultBusBuffer,
		"log.file":                 "trender.log",
		"log.max_size":             100,
		"log.max_age":              7,
		"log.max_backups":          3,
		"log.compress":             true,
		"log.development":          false,
		"log.pretty":               false,
		"tradelog.sqlite_path":     "",
		"tradelog.journal_path":    "",
		"tradelog.candle_interval": DefaultCandleInterval,
		"tradelog.export_dir":      "exports",
		"client.settle_delay":      DefaultSettleDelay,
		"client.slippage_percent":  DefaultSlippagePercent,
		"client.read_attempts":     DefaultReadAttempts,
	}
}

// LoadConfig reads path (when non-empty), applies defaults and TRENDER_* env
// overrides, and validates the result. Every key needs a default for its env
// override to reach Unmarshal.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	loadEnvironmentVariables(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func loadEnvironmentVariables(v *viper.Viper) {
	v.SetEnvPrefix("TRENDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func validateConfig(cfg *Config) error {
	if _, err := solana.PublicKeyFromBase58(cfg.ProgramID); err != nil {
		return fmt.Errorf("invalid program_id: %w", err)
	}
	if cfg.TreasuryAuthority != "" {
		if _, err := solana.PublicKeyFromBase58(cfg.TreasuryAuthority); err != nil {
			return fmt.Errorf("invalid treasury_authority: %w", err)
		}
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	if cfg.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	for name, bps := range map[string]uint64{
		"fees.init_bps":    cfg.Fees.InitBps,
		"fees.buy_bps":     cfg.Fees.BuyBps,
		"fees.sell_bps":    cfg.Fees.SellBps,
		"fees.release_bps": cfg.Fees.ReleaseBps,
	} {
		if bps > curve.BasisPoints {
			return fmt.Errorf("invalid %s: %d exceeds %d", name, bps, curve.BasisPoints)
		}
	}
	if cfg.Limits.MinDeposit == 0 {
		return errors.New("invalid limits.min_deposit")
	}
	if cfg.Limits.MinTrade == 0 {
		return errors.New("invalid limits.min_trade")
	}
	if cfg.BusBuffer <= 0 {
		return errors.New("invalid bus_buffer")
	}
	if cfg.TradeLog.CandleInterval <= 0 {
		return errors.New("invalid tradelog.candle_interval")
	}
	if cfg.Client.SettleDelay < 0 {
		return errors.New("invalid client.settle_delay")
	}
	if cfg.Client.SlippagePercent < 0 || cfg.Client.SlippagePercent >= 100 {
		return errors.New("invalid client.slippage_percent")
	}
	if cfg.Client.ReadAttempts == 0 {
		return errors.New("invalid client.read_attempts")
	}
	return nil
}

// Program maps the file configuration onto the processor configuration.
func (c *Config) Program() (program.Config, error) {
	programID, err := solana.PublicKeyFromBase58(c.ProgramID)
	if err != nil {
		return program.Config{}, fmt.Errorf("invalid program_id: %w", err)
	}

	var authority solana.PublicKey
	if c.TreasuryAuthority != "" {
		if authority, err = solana.PublicKeyFromBase58(c.TreasuryAuthority); err != nil {
			return program.Config{}, fmt.Errorf("invalid treasury_authority: %w", err)
		}
	}

	return program.Config{
		ProgramID:         programID,
		TreasuryAuthority: authority,
		Fees: program.FeeSchedule{
			InitBps:    c.Fees.InitBps,
			BuyBps:     c.Fees.BuyBps,
			SellBps:    c.Fees.SellBps,
			ReleaseBps: c.Fees.ReleaseBps,
		},
		MinDeposit:  c.Limits.MinDeposit,
		MinTrade:    c.Limits.MinTrade,
		AsyncEvents: c.AsyncEvents,
	}, nil
}

// Logger maps the log section onto the logger configuration.
func (c *Config) Logger() *logger.Config {
	return &logger.Config{
		LogFile:     c.Log.File,
		MaxSize:     c.Log.MaxSize,
		MaxAge:      c.Log.MaxAge,
		MaxBackups:  c.Log.MaxBackups,
		Compress:    c.Log.Compress,
		Development: c.Log.Development,
		Pretty:      c.Log.Pretty,
	}
}

// Slippage returns the client's default percentage slippage policy.
func (c *Config) Slippage() types.SlippageConfig {
	return types.SlippageConfig{Type: types.SlippagePercent, Value: c.Client.SlippagePercent}
}
