package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Default *zap.SugaredLogger

var level = zap.NewAtomicLevelAt(zap.InfoLevel)

func init() {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder // human-readable time

	rawLogger, err := cfg.Build()
	if err != nil {
		rawLogger = zap.NewNop()
	}
	Default = rawLogger.WithOptions(zap.AddCaller()).Sugar()
}

// SetLevel changes the level of Default at runtime. Unknown names keep the current level.
//
//	"debug" show everything
//	"info"  typical prod default
//	"warn"  only warnings and up
//	"error" only errors and up
func SetLevel(name string) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		Default.Warnf("[logger] - unknown log level %q, keeping %s", name, level.Level())
		return
	}
	level.SetLevel(lvl)
}

// Sync flushes buffered entries, call it before the process exits.
func Sync() {
	_ = Default.Sync()
}
