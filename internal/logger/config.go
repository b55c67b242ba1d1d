// internal/logger/config.go
package logger

// Config controls console and rotating-file output.
type Config struct {
	LogFile     string // empty disables the file core
	MaxSize     int    // megabytes
	MaxAge      int    // days
	MaxBackups  int
	Compress    bool
	Development bool
	Pretty      bool // colored, field-free console output
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() *Config {
	return &Config{
		LogFile:     "trender.log",
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: false,
	}
}
