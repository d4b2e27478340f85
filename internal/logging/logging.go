package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

var logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
	Level:      slog.LevelInfo,
	TimeFormat: time.Kitchen,
}))

// Logger returns the process logger.
func Logger() *slog.Logger {
	return logger
}

// SetDebug lowers the log level to debug (used by the --debug flag).
func SetDebug() {
	logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))
}
