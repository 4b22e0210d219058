package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"qc-inspector/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3Mirror replicates committed version bundles to an S3 bucket for
// off-host retention. Uploads are best-effort; a failed mirror never fails
// the training run that produced the bundle.
type S3Mirror struct {
	client *s3.Client
	bucket string
	log    *zap.SugaredLogger
}

// NewS3Mirror builds a mirror from the ambient AWS configuration
func NewS3Mirror(ctx context.Context, bucket string, log *zap.SugaredLogger) (*S3Mirror, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Mirror{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		log:    log,
	}, nil
}

// MirrorVersion uploads every file of a committed version directory under
// models/<Display>/cable/v<N>/..., mirroring the on-disk layout.
func (m *S3Mirror) MirrorVersion(ctx context.Context, mt models.ModelType, version int, dir string) error {
	prefix := path.Join("models", mt.DisplayName(), "cable", fmt.Sprintf("v%d", version))

	return filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		m.log.Debugw("mirrored artifact", "bucket", m.bucket, "key", key)
		return nil
	})
}
