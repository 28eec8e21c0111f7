package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options control the default logger
type Options struct {
	Verbose bool
	// File, when set, receives JSON logs with size-based rotation
	File string
}

// Setup installs the default slog logger and returns a closer for the
// log file, if any.
func Setup(opts Options) io.Closer {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	logger, closer := New(os.Stderr, opts.File, handlerOpts)
	slog.SetDefault(logger)
	return closer
}

// New builds a text logger on w, or a JSON logger on a rotating file
func New(w io.Writer, file string, opts *slog.HandlerOptions) (*slog.Logger, io.Closer) {
	if file == "" {
		return slog.New(slog.NewTextHandler(w, opts)), io.NopCloser(nil)
	}

	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	return slog.New(slog.NewJSONHandler(rotator, opts)), rotator
}
