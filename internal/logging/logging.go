// Package logging wires structured logging for the daemon. Grounded on
// NebulaLink's pkg/logger: a slog.Logger writing JSON to both stdout and a
// rotated file via gopkg.in/natefinch/lumberjack.v2.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Init builds and installs the process-wide default slog.Logger, writing
// JSON lines to stdout and to a size-rotated file at logFilePath.
func Init(logFilePath string) *slog.Logger {
	rotator := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	writer := io.MultiWriter(os.Stdout, rotator)
	logger := slog.New(slog.NewJSONHandler(writer, nil))
	slog.SetDefault(logger)
	return logger
}
