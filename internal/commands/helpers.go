package commands

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// cliLogger builds the structured logger used by commands: development
// encoding on stderr, warnings and up, so interactive output stays clean.
func cliLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}
