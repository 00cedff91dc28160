package s3store

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/chirino/ufdr-service/internal/config"
	registryblob "github.com/chirino/ufdr-service/internal/registry/blob"
	"github.com/chirino/ufdr-service/internal/tempfiles"
	"github.com/google/uuid"
)

func init() {
	registryblob.Register(registryblob.Plugin{
		Name:   "s3",
		Loader: load,
	})
}

func load(ctx context.Context) (registryblob.BlobStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3store: UFDR_SERVICE_S3_BUCKET is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("s3store: load AWS config: %w", err)
	}
	usePathStyle := cfg.S3UsePathStyle
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})
	return &S3BlobStore{
		client:  client,
		bucket:  cfg.S3Bucket,
		prefix:  strings.Trim(strings.TrimSpace(cfg.S3Prefix), "/"),
		tempDir: cfg.ResolvedTempDir(),
	}, nil
}

type S3BlobStore struct {
	client  *s3.Client
	bucket  string
	prefix  string
	tempDir string
}

// s3Key applies the configured prefix. Stored keys never include it, so the
// prefix can be changed by moving objects without touching the database.
func (s *S3BlobStore) s3Key(storageKey string) string {
	if s.prefix != "" {
		return s.prefix + "/" + storageKey
	}
	return storageKey
}

func (s *S3BlobStore) Store(ctx context.Context, data io.Reader, maxSize int64, contentType string) (*registryblob.StoreResult, error) {
	// PutObject needs a known length, so buffer to disk first.
	spooled, err := tempfiles.Spool(s.tempDir, "ufdr-service-s3-upload-*", data, maxSize)
	if err != nil {
		return nil, err
	}
	defer spooled.Remove()

	storageKey := uuid.New().String()
	s3Key := s.s3Key(storageKey)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &s3Key,
		Body:          spooled.File,
		ContentLength: aws.Int64(spooled.Size),
		ContentType:   &contentType,
		Metadata:      map[string]string{"sha256": spooled.SHA256},
	}, func(o *s3.Options) {
		o.APIOptions = append(o.APIOptions, v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware)
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: put object: %w", err)
	}

	return &registryblob.StoreResult{
		StorageKey: storageKey,
		Size:       spooled.Size,
		SHA256:     spooled.SHA256,
	}, nil
}

func (s *S3BlobStore) Retrieve(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	s3Key := s.s3Key(storageKey)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &s3Key,
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: get object: %w", err)
	}
	return resp.Body, nil
}

func (s *S3BlobStore) Delete(ctx context.Context, storageKey string) error {
	s3Key := s.s3Key(storageKey)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &s3Key,
	})
	if err != nil {
		return fmt.Errorf("s3store: delete object: %w", err)
	}
	return nil
}

var _ registryblob.BlobStore = (*S3BlobStore)(nil)
