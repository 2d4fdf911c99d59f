package logging

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/engine"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Info("hidden")
	logger.Warn("shown", "source", "docs")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "source=docs")
	assert.NotContains(t, out, "\x1b[", "no colour on a non-terminal writer")
}

func TestLogSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	LogSummary(logger, Summary{
		Sources:  2,
		Matched:  10,
		Uploaded: 3,
		Skipped:  7,
		Bytes:    3 * 1024 * 1024,
		Duration: 1500 * time.Millisecond,
	})

	out := buf.String()
	require.Contains(t, out, "summary")
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "uploaded=3")
	assert.Contains(t, out, "3.0 MiB")
	assert.Contains(t, out, "duration=1.5s")

	buf.Reset()
	LogSummary(logger, Summary{Sources: 1, Failed: 1})
	assert.Contains(t, buf.String(), "WRN")
}

func TestSummarize(t *testing.T) {
	s := Summarize(
		&engine.Result{Source: "docs", Matched: 4, Uploaded: 1, Skipped: 3, Bytes: 100, Duration: time.Second},
		nil,
		&engine.Result{Source: "fonts", Matched: 2, Uploaded: 1, Failed: 1, Bytes: 50, Duration: time.Second},
	)

	assert.Equal(t, Summary{
		Sources:  2,
		Matched:  6,
		Uploaded: 2,
		Skipped:  3,
		Failed:   1,
		Bytes:    150,
		Duration: 2 * time.Second,
	}, s)
}
