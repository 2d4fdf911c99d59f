package s3client

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// Client is the blob sink the sync engine uploads to.
type Client interface {
	// Upload stores the local file under key, replacing any existing object.
	Upload(ctx context.Context, req *UploadRequest) error
	// Target names the destination (bucket and prefix) for logs and manifests.
	Target() string
}

type UploadRequest struct {
	LocalPath   string
	Key         string
	ContentType string
}

// UploadError wraps a failed upload with the service error code when there is one.
type UploadError struct {
	Key  string
	Code string
	Err  error
}

func (e *UploadError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upload %s: %s: %v", e.Key, e.Code, e.Err)
	}
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

func newUploadError(key string, err error) error {
	ue := &UploadError{Key: key, Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		ue.Code = apiErr.ErrorCode()
	}
	return ue
}
