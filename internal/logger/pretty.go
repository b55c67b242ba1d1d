// internal/logger/pretty.go
package logger

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Colors for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// PrettyEncoder creates a user-friendly console encoder
func PrettyEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
}

func levelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString(ColorCyan + "[DEBUG]" + ColorReset)
	case zapcore.InfoLevel:
		enc.AppendString(ColorGreen + "[INFO]" + ColorReset)
	case zapcore.WarnLevel:
		enc.AppendString(ColorYellow + "[WARN]" + ColorReset)
	case zapcore.ErrorLevel:
		enc.AppendString(ColorRed + "[ERROR]" + ColorReset)
	case zapcore.FatalLevel:
		enc.AppendString(ColorRed + ColorBold + "[FATAL]" + ColorReset)
	default:
		enc.AppendString("[" + level.CapitalString() + "]")
	}
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05"))
}

// FormatMessage rewrites well-known engine messages into short console lines.
func FormatMessage(msg string, fields ...zapcore.Field) string {
	switch {
	case strings.Contains(msg, "Pool initialized"):
		return fmt.Sprintf("%s🌱 Pool %s opened%s", ColorGreen, extractField(fields, "post_id"), ColorReset)

	case strings.Contains(msg, "Hype bought"):
		return fmt.Sprintf("%s📈 Bought %s HYPE for %s lamports%s",
			ColorCyan, extractField(fields, "amount"), extractField(fields, "cost"), ColorReset)

	case strings.Contains(msg, "Hype sold"):
		return fmt.Sprintf("%s📉 Sold %s HYPE for %s lamports%s",
			ColorPurple, extractField(fields, "amount"), extractField(fields, "refund"), ColorReset)

	case strings.Contains(msg, "Transaction committed"):
		return fmt.Sprintf("%s✅ Transaction %s%s", ColorGreen, shortenSignature(extractField(fields, "signature")), ColorReset)

	case strings.Contains(msg, "Transaction rejected"):
		return fmt.Sprintf("%s✗ Transaction %s rejected%s", ColorRed, shortenSignature(extractField(fields, "signature")), ColorReset)

	default:
		return msg
	}
}

func extractField(fields []zapcore.Field, key string) string {
	for _, field := range fields {
		if field.Key != key {
			continue
		}
		switch field.Type {
		case zapcore.StringType:
			return field.String
		case zapcore.Int64Type, zapcore.Int32Type:
			return fmt.Sprintf("%d", field.Integer)
		case zapcore.Uint64Type, zapcore.Uint32Type:
			return fmt.Sprintf("%d", uint64(field.Integer))
		default:
			if field.Interface != nil {
				return fmt.Sprintf("%v", field.Interface)
			}
			return ""
		}
	}
	return ""
}

func shortenSignature(sig string) string {
	if len(sig) > 16 {
		return sig[:8] + "..." + sig[len(sig)-8:]
	}
	return sig
}

// FieldFilterCore drops structured fields and prettifies the message.
type FieldFilterCore struct {
	core    zapcore.Core
	context []zapcore.Field
}

func (c *FieldFilterCore) Enabled(level zapcore.Level) bool {
	return c.core.Enabled(level)
}

func (c *FieldFilterCore) With(fields []zapcore.Field) zapcore.Core {
	context := make([]zapcore.Field, 0, len(c.context)+len(fields))
	context = append(context, c.context...)
	return &FieldFilterCore{core: c.core, context: append(context, fields...)}
}

func (c *FieldFilterCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *FieldFilterCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := make([]zapcore.Field, 0, len(c.context)+len(fields))
	all = append(append(all, c.context...), fields...)
	entry.Message = FormatMessage(entry.Message, all...)
	return c.core.Write(entry, nil)
}

func (c *FieldFilterCore) Sync() error {
	return c.core.Sync()
}
