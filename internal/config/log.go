package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger builds the process-wide slog logger, writing to stdout and a
// rotating file. Falls back to stdout-only if the log directory cannot be
// created.
func InitLogger(logPath string) *slog.Logger {
	if logPath == "" {
		logPath = "logs/dataset-service.log"
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
		slog.SetDefault(logger)
		return logger
	}

	rotating := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    100, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	mw := io.MultiWriter(os.Stdout, rotating)
	logger := slog.New(slog.NewTextHandler(mw, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	return logger
}
