package pose

import (
	"io"

	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation settings for file logs.
const (
	logMaxSize   = 50 // MB
	logMaxBackup = 5
	logMaxAge    = 28 // days
)

// NewFileLogger returns a leveled logger writing JSON lines to a rotating
// file at path. Level is one of logging.Debug, logging.Info, logging.Warning,
// logging.Error.
func NewFileLogger(path string, level int8) logging.Logger {
	fileLog := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	return logging.New(level, fileLog, true)
}

func discardLogger() logging.Logger {
	return logging.New(logging.Error, io.Discard, true)
}
