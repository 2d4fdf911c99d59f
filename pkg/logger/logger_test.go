package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestSyncLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &SyncLogger{Log: newBufferLogger(&buf)}

	l.Upload("/data/a.txt", "docs/a.txt")
	l.Skip("/data/b.txt", "unchanged")
	l.Error("upload", "docs/c.txt", errors.New("boom"))
	l.Debug("pass done", "source", "docs")

	out := buf.String()
	assert.Contains(t, out, "msg=upload")
	assert.Contains(t, out, "key=docs/a.txt")
	assert.Contains(t, out, "reason=unchanged")
	assert.Contains(t, out, `msg="upload failed"`)
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "source=docs")
}

func TestSyncLoggerDryRunAndQuiet(t *testing.T) {
	var buf bytes.Buffer
	l := &SyncLogger{Log: newBufferLogger(&buf), IsDryRun: true}
	l.Upload("/data/a.txt", "docs/a.txt")
	assert.Contains(t, buf.String(), `msg="(dryrun) upload"`)

	buf.Reset()
	quiet := &SyncLogger{Log: newBufferLogger(&buf), IsQuiet: true}
	quiet.Upload("/data/a.txt", "docs/a.txt")
	assert.Empty(t, buf.String())

	quiet.Error("upload", "docs/a.txt", errors.New("boom"))
	assert.Contains(t, buf.String(), "boom", "errors are logged even when quiet")
}
