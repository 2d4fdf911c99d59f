package logger

import (
	"log/slog"
)

// Logger receives per-file events from a sync pass.
type Logger interface {
	Upload(localPath, key string)
	Skip(localPath, reason string)
	Error(operation, path string, err error)
	Debug(message string, args ...any)
}

// SyncLogger writes sync events through slog.
type SyncLogger struct {
	Log      *slog.Logger
	IsDryRun bool
	IsQuiet  bool
}

func (l *SyncLogger) logger() *slog.Logger {
	if l.Log == nil {
		return slog.Default()
	}
	return l.Log
}

func (l *SyncLogger) Upload(localPath, key string) {
	if l.IsQuiet {
		return
	}
	msg := "upload"
	if l.IsDryRun {
		msg = "(dryrun) upload"
	}
	l.logger().Info(msg, "local", localPath, "key", key)
}

func (l *SyncLogger) Skip(localPath, reason string) {
	l.logger().Debug("skip", "local", localPath, "reason", reason)
}

func (l *SyncLogger) Error(operation, path string, err error) {
	l.logger().Error(operation+" failed", "path", path, "error", err)
}

func (l *SyncLogger) Debug(message string, args ...any) {
	l.logger().Debug(message, args...)
}
