// Package logging builds zap loggers from configuration strings.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Supported formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New creates a logger writing to dest at level ("debug", "info", "warn",
// "error"). A json format uses the production encoder, console the
// development one. An empty level means info; a nil dest means stderr.
func New(level, format string, dest io.Writer) (*zap.Logger, error) {
	if level == "" {
		level = "info"
	}
	atom, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return nil, err
	}

	var encoderCfg zapcore.EncoderConfig
	var encoder zapcore.Encoder
	switch strings.ToLower(format) {
	case FormatConsole:
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		encoderCfg = zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var sink zapcore.WriteSyncer
	if dest == nil {
		sink = zapcore.Lock(os.Stderr)
	} else {
		sink = zapcore.AddSync(dest)
	}
	return zap.New(zapcore.NewCore(encoder, sink, atom)), nil
}
