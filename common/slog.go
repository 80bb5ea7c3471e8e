package common

import (
	"io"
	"log/slog"
)

// SlogResetLevel sets the default slog level and returns a function
// that restores the previous one. Pairs well with defer:
//
//	defer common.SlogResetLevel(slog.LevelWarn + 1)()
func SlogResetLevel(level slog.Level) (reset func()) {
	oldLevel := slog.SetLogLoggerLevel(level)
	return func() {
		slog.SetLogLoggerLevel(oldLevel)
	}
}

// SetDefaultSlog installs a text handler writing to w at the given level.
func SetDefaultSlog(w io.Writer, level slog.Level) {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
}
