// Package weblog sets up the process-wide structured logger. It
// mirrors the teacher's default production log (logging.go,
// newDefaultProductionLog): JSON encoding to stderr at info level, with
// a console encoder available for interactive use.
package weblog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Mode selects the encoder, the way the teacher distinguishes its
// default production log from the console-friendly form used when
// running interactively.
type Mode int

const (
	Production Mode = iota
	Console
)

// New builds a zap.Logger writing to stderr. Production uses the JSON
// encoder (for log aggregation); Console uses the human-friendly
// console encoder (for a developer watching the terminal).
func New(mode Mode) (*zap.Logger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch mode {
	case Console:
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), zapcore.InfoLevel)
	return zap.New(core), nil
}
