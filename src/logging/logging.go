// Package logging builds the *zap.SugaredLogger every rowvault
// component takes as an optional dependency, adding terminal detection
// so interactive sessions get a colorized console encoder instead of
// raw JSON.
package logging

import (
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Nop returns a logger that discards everything. Every rowvault
// component falls back to this when no logger is supplied, so the
// library never panics on a nil field and never requires configuration
// to be usable.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// New builds a logger writing to os.Stdout at Info level, or at Debug
// level when debug is true. When stdout is a terminal, the output uses
// a colorized console encoder; otherwise it falls back to structured
// JSON, which is what a supervised process (systemd, a container
// runtime) expects.
func New(debug bool) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	var encoder zapcore.Encoder
	var sink zapcore.WriteSyncer

	if isatty.IsTerminal(os.Stdout.Fd()) {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
		sink = zapcore.AddSync(colorable.NewColorableStdout())
	} else {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		sink = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core).Sugar()
}
