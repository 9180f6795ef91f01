package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ObjectPutter is the part of the S3 client used for archiving.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchiveConfig locates the archive bucket.
type ArchiveConfig struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for S3-compatible stores
	Prefix    string
	PathStyle bool
}

// Archiver stores rendered exports in S3.
type Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewArchiver wraps an existing client.
func NewArchiver(client ObjectPutter, bucket, prefix string, logger *zap.Logger) *Archiver {
	return &Archiver{client: client, bucket: bucket, prefix: prefix, logger: logger, now: time.Now}
}

// NewS3Archiver builds an S3 client from the default credential chain.
func NewS3Archiver(ctx context.Context, cfg ArchiveConfig, logger *zap.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewArchiver(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// Archive uploads body under <prefix>/<scope>/<timestamp>-<name>.<ext> and
// returns the object key.
func (a *Archiver) Archive(ctx context.Context, scope, name string, format Format, body []byte) (string, error) {
	stamp := a.now().UTC().Format("20060102T150405Z")
	key := path.Join(a.prefix, scope, fmt.Sprintf("%s-%s.%s", stamp, name, format.Extension()))

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(format.ContentType()),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive export: %w", err)
	}

	a.logger.Info("Export archived",
		zap.String("bucket", a.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(body)))
	return key, nil
}
