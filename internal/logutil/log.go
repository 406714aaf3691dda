// Package logutil wraps pingcap/log's global logger setup the way
// scheduler/server/config.Config.SetupLogger does, so every module logs
// through the same structured zap.Logger instead of reaching for the
// standard library's log package.
package logutil

import (
	plog "github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger installs the global pingcap/log logger at level (one of
// "debug", "info", "warn", "error") writing to file, or stderr if file is
// empty.
func InitLogger(level, file string) error {
	cfg := &plog.Config{
		Level: level,
		File:  plog.FileLogConfig{Filename: file},
	}
	lg, _, err := plog.InitLogger(cfg, zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		return err
	}
	plog.ReplaceGlobals(lg, nil)
	return nil
}
