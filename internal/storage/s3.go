// Package storage mirrors finished run artifacts (transcript, analysis
// answers) to an S3-compatible object store. Mirroring is optional and
// best-effort: the local workspace stays the source of truth.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/simplex5/youtube-analyzer/internal/config"
)

// Mirror uploads artifacts to an S3-compatible bucket.
type Mirror struct {
	client *s3.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewMirror creates an S3 mirror from config and verifies bucket access.
// Returns (nil, nil) when mirroring is not configured.
func NewMirror(cfg config.S3Config, log zerolog.Logger) (*Mirror, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	m := &Mirror{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.With().Str("component", "s3-mirror").Logger(),
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := m.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &m.bucket}); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	m.log.Info().Str("bucket", cfg.Bucket).Msg("S3 mirror enabled")

	return m, nil
}

// Save uploads one artifact. key format: {workspaceTitle}/{subdir}/{filename}.
func (m *Mirror) Save(ctx context.Context, key string, data []byte, contentType string) error {
	objKey := m.objectKey(key)
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &m.bucket,
		Key:         &objKey,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", objKey, err)
	}
	m.log.Debug().Str("key", objKey).Int("bytes", len(data)).Msg("artifact mirrored")
	return nil
}

func (m *Mirror) objectKey(key string) string {
	if m.prefix == "" {
		return key
	}
	return path.Join(m.prefix, key)
}
