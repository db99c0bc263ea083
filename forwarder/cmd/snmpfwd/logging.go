package main

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/snmpfwd/snmpfwd/forwarder/internal/config"
)

// newLogger builds the process logger from cfg. Output goes to stdout and,
// when cfg.File is set, also to a size-rotated file. level is set from cfg
// and kept so that hot reloads can adjust it.
func newLogger(cfg config.LogConfig, level *slog.LevelVar) (*slog.Logger, func() error) {
	level.Set(cfg.SlogLevel())

	var w io.Writer = os.Stdout
	closeFn := func() error { return nil }
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		w = io.MultiWriter(os.Stdout, rotator)
		closeFn = rotator.Close
	}
	return slog.New(newHandler(w, cfg.Format, level)), closeFn
}

func newHandler(w io.Writer, format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}
