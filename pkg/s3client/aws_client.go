package s3client

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config describes the destination bucket and how to reach it.
type Config struct {
	BucketName string
	Prefix     string
	Region     string
	Profile    string
	Endpoint   string
	AccessKey  string
	SecretKey  string
}

// LoadAWSConfig builds an aws.Config from the default chain, overridden by
// profile, region and static credentials when they are set.
func LoadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var configOpts []func(*config.LoadOptions) error
	if cfg.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.Region != "" {
		configOpts = append(configOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

type AWSClient struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewAWSClient creates a sink for cfg.BucketName. A custom endpoint switches
// to path-style addressing for S3-compatible stores.
func NewAWSClient(awsCfg aws.Config, cfg Config) *AWSClient {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &AWSClient{
		uploader: manager.NewUploader(client),
		bucket:   cfg.BucketName,
		prefix:   normalizePrefix(cfg.Prefix),
	}
}

func (c *AWSClient) Target() string {
	if c.prefix == "" {
		return fmt.Sprintf("s3://%s", c.bucket)
	}
	return fmt.Sprintf("s3://%s/%s", c.bucket, c.prefix)
}

func (c *AWSClient) Upload(ctx context.Context, req *UploadRequest) error {
	file, err := os.Open(req.LocalPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	key := joinKey(c.prefix, req.Key)
	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   file,
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}

	if _, err := c.uploader.Upload(ctx, input); err != nil {
		return newUploadError(key, err)
	}

	return nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return path.Clean(prefix)
}

func joinKey(prefix, key string) string {
	key = strings.TrimPrefix(key, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
