// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the JSON process logger writing to w at the named
// level ("debug", "info", "warn", "error") and installs it as the slog
// default.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	parsed, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parsed}))
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel maps a configuration level name to a slog.Level. The
// empty string means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}
