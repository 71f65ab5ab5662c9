// Package logging builds the slog.Logger the rest of the miner logs
// through, wired from the --debug/--log-file/--log-console flags.
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Options controls New's handler selection, mirroring spec.md §6.3's
// logging flags.
type Options struct {
	Debug      bool
	LogFile    string
	LogConsole bool
}

// New builds the root logger for the process. If LogFile is set, a JSON
// handler writes to that file; if LogConsole is set (or no LogFile was
// given), a text handler writes to stderr. Both may be active at once, in
// which case log records go to both. The returned closer must be called on
// shutdown to flush and close the log file, if one was opened.
func New(opts Options) (logger *slog.Logger, closer func() error, err error) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	closer = func() error { return nil }

	if opts.LogFile != "" {
		f, ferr := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if ferr != nil {
			return nil, nil, ferr
		}
		handlers = append(handlers, slog.NewJSONHandler(f, handlerOpts))
		closer = f.Close
	}

	if opts.LogConsole || opts.LogFile == "" {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, handlerOpts))
	}

	return slog.New(fanoutHandler{handlers: handlers}), closer, nil
}

// fanoutHandler dispatches every record to each wrapped handler, so
// --log-file and --log-console can both be active at once.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return fanoutHandler{handlers: next}
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return fanoutHandler{handlers: next}
}
