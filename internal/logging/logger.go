package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
)

// NewLogger builds a JSON logger writing to stdout. When file is set the
// same records are also written to a size-rotated log file.
func NewLogger(level, file string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(Output(file), &slog.HandlerOptions{
		Level:     levelFromString(level),
		AddSource: true,
	}))
}

// Output returns stdout, tee'd into a rotating file when file is non-empty.
func Output(file string) io.Writer {
	if strings.TrimSpace(file) == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 7,
		MaxAge:     7, // days
		Compress:   true,
	})
}

func levelFromString(level string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
