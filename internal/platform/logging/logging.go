package logging

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// New builds the process logger. All module code receives *slog.Logger and
// never touches handler construction.
func New(service, process string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	return slog.New(handler).With("service", service, "process", process)
}
