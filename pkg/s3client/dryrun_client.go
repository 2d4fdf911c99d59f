package s3client

import (
	"context"
	"log/slog"
)

// DryRunClient logs uploads instead of performing them.
type DryRunClient struct {
	target string
	logger *slog.Logger
}

func NewDryRunClient(target string, logger *slog.Logger) *DryRunClient {
	if target == "" {
		target = "dryrun://"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRunClient{target: target, logger: logger}
}

func (c *DryRunClient) Target() string {
	return c.target
}

func (c *DryRunClient) Upload(ctx context.Context, req *UploadRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.logger.Info("(dryrun) upload", "local", req.LocalPath, "key", req.Key, "contentType", req.ContentType)
	return nil
}
