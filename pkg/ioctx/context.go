// Package ioctx carries the output streams and logger of a command
// through its context.
package ioctx

import (
	"context"
	"io"
	"log/slog"
)

type stdoutKey struct{}
type stderrKey struct{}
type loggerKey struct{}

func writer(ctx context.Context, key any) io.Writer {
	if w, ok := ctx.Value(key).(io.Writer); ok {
		return w
	}
	return io.Discard
}

// StdoutFromContext returns the command's stdout, or io.Discard.
func StdoutFromContext(ctx context.Context) io.Writer {
	return writer(ctx, stdoutKey{})
}

func StdoutToContext(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, stdoutKey{}, w)
}

// StderrFromContext returns the command's stderr, or io.Discard.
func StderrFromContext(ctx context.Context) io.Writer {
	return writer(ctx, stderrKey{})
}

func StderrToContext(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, stderrKey{}, w)
}

// LoggerFromContext returns the logger set with LoggerToContext, falling
// back to slog.Default.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func LoggerToContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}
