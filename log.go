package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/config"
	gap "github.com/muesli/go-app-paths"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, config.AppName).CacheDir()
	if err != nil {
		return "", fmt.Errorf("could not find cache directory: %w", err)
	}
	return filepath.Join(dir, config.AppName+".log"), nil
}

// setupLog sends the default logger to a file in the user cache dir so
// that it never draws over the TUI.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		// log disabled
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	return f.Close, nil
}

// applyLogLevel sets the default level from the config, or debug when
// debug is set.
func applyLogLevel(level string, debug bool) {
	if debug {
		log.SetLevel(log.DebugLevel)
		return
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warn("unknown log level", "level", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
