package util

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide zerolog root logger. When logDir is
// non-empty, output is mirrored to an append-only file next to stdout.
func NewLogger(level, logDir string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stdout
	if logDir != "" {
		if mkErr := os.MkdirAll(logDir, 0o755); mkErr == nil {
			f, openErr := os.OpenFile(filepath.Join(logDir, "skr-swap.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if openErr == nil {
				w = io.MultiWriter(os.Stdout, f)
			}
		}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}
