package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/engine"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// NewLogger returns a tint logger writing to w. Colour is enabled only when w
// is a terminal.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: timeFormat,
		NoColor:    noColor,
	}))
}

// Setup installs a stderr logger at the given level as the slog default.
func Setup(level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	logger := NewLogger(os.Stderr, lvl)
	slog.SetDefault(logger)
	return logger, err
}

// Summary is the outcome of one or more sync passes.
type Summary struct {
	Sources  int           `json:"sources"`
	Matched  int           `json:"matched"`
	Uploaded int           `json:"uploaded"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

// Summarize totals the results of several passes. Nil results are ignored.
func Summarize(results ...*engine.Result) Summary {
	var s Summary
	for _, r := range results {
		if r == nil {
			continue
		}
		s.Sources++
		s.Matched += r.Matched
		s.Uploaded += r.Uploaded
		s.Skipped += r.Skipped
		s.Failed += r.Failed
		s.Bytes += r.Bytes
		s.Duration += r.Duration
	}
	return s
}

// LogSummary prints s at info, or at warn when anything failed.
func LogSummary(logger *slog.Logger, s Summary) {
	level := slog.LevelInfo
	if s.Failed > 0 {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "summary",
		"sources", s.Sources,
		"matched", s.Matched,
		"uploaded", s.Uploaded,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"size", humanize.IBytes(uint64(s.Bytes)),
		"duration", s.Duration.Round(time.Millisecond),
	)
}
