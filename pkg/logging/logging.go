package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a slog.Logger based on LOG_LEVEL and LOG_FORMAT.
func NewLogger(levelString string, formatString string) *slog.Logger {
	return NewLoggerWithWriter(os.Stdout, levelString, formatString)
}

// NewLoggerWithWriter is NewLogger writing to writer.
func NewLoggerWithWriter(writer io.Writer, levelString string, formatString string) *slog.Logger {
	options := &slog.HandlerOptions{Level: parseLevel(levelString)}
	if strings.EqualFold(strings.TrimSpace(formatString), "json") {
		return slog.New(slog.NewJSONHandler(writer, options))
	}
	return slog.New(slog.NewTextHandler(writer, options))
}

func parseLevel(levelString string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(levelString)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
