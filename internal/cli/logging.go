package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// parseLevel maps a configured level name to a slog level.
func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the process logger. Text output is colored when w is a
// terminal. Verbose forces debug.
func newLogger(w io.Writer, format, level string, verbose bool) *slog.Logger {
	ll := &slog.LevelVar{}
	ll.Set(parseLevel(level))
	if verbose {
		ll.Set(slog.LevelDebug)
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ll}))
	}

	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// systemd stamps lines itself.
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// logger builds a logger on w from the global flags.
func (o *RootOptions) logger(w io.Writer, level string) *slog.Logger {
	return newLogger(w, o.LogFormat, level, o.Verbose)
}
