package bioxtesting

import (
	"log/slog"
	"os"
)

// NewLogger returns a logger for tests. DEBUG=2 enables debug output, DEBUG=1
// info output; otherwise only errors are shown.
func NewLogger() *slog.Logger {
	var level slog.Level
	switch os.Getenv("DEBUG") {
	case "2":
		level = slog.LevelDebug
	case "1":
		level = slog.LevelInfo
	default:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
