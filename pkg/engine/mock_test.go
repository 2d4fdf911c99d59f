package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/yuya-takeyama/manifest-s3-sync/pkg/s3client"
)

// mockSink is a mock implementation of s3client.Client for testing
type mockSink struct {
	mu         sync.Mutex
	uploadFunc func(ctx context.Context, req *s3client.UploadRequest) error
	uploads    []s3client.UploadRequest
}

func (m *mockSink) Upload(ctx context.Context, req *s3client.UploadRequest) error {
	m.mu.Lock()
	m.uploads = append(m.uploads, *req)
	fn := m.uploadFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return nil
}

func (m *mockSink) Target() string {
	return "s3://test-bucket"
}

func (m *mockSink) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.uploads))
	for _, u := range m.uploads {
		keys = append(keys, u.Key)
	}
	return keys
}

func (m *mockSink) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = nil
}

// mockLogger is a mock implementation of logger.Logger for testing
type mockLogger struct {
	mu          sync.Mutex
	uploadCalls []uploadCall
	skipCalls   []skipCall
	errorCalls  []errorCall
	debugCalls  []string
}

type uploadCall struct {
	localPath string
	key       string
}

type skipCall struct {
	localPath string
	reason    string
}

type errorCall struct {
	operation string
	path      string
	err       error
}

func (m *mockLogger) Upload(localPath, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadCalls = append(m.uploadCalls, uploadCall{localPath, key})
}

func (m *mockLogger) Skip(localPath, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipCalls = append(m.skipCalls, skipCall{localPath, reason})
}

func (m *mockLogger) Error(operation, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCalls = append(m.errorCalls, errorCall{operation, path, err})
}

func (m *mockLogger) Debug(message string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugCalls = append(m.debugCalls, fmt.Sprint(append([]any{message}, args...)...))
}
