package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/logging"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) S3API {
		return s3.NewFromConfig(cfg, optFns...)
	}

	now = time.Now
)

// S3API is the subset of the S3 client the backend uses.
type S3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds the connection settings of an S3-compatible store (MinIO).
type S3Config struct {
	Region       string
	RootUser     string
	RootPassword string
	BaseEndpoint string
	Bucket       string
}

// S3Backend stores artifacts as objects in one bucket. The object key is the
// remote identifier.
type S3Backend struct {
	client S3API
	bucket string
	log    logging.Logger
}

// NewS3Backend builds an S3 client with static credentials and a custom
// endpoint.
func NewS3Backend(ctx context.Context, cfg S3Config, log logging.Logger) (*S3Backend, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.RootUser,
			cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", common.ErrStorageBackend, err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return NewS3BackendWithClient(client, cfg.Bucket, log), nil
}

// NewS3BackendWithClient wraps an existing client.
func NewS3BackendWithClient(client S3API, bucket string, log logging.Logger) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, log: log.With("module", "storage", "backend", "s3")}
}

func (b *S3Backend) Upload(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", common.ErrFilesystem, localPath, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", common.ErrFilesystem, localPath, err)
	}

	key := NewObjectKey(now(), name)
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(st.Size()),
		ContentType:   aws.String(MimeType(name)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: put object: %v", common.ErrStorageBackend, err)
	}

	b.log.Info(ctx, "object uploaded", "key", key, "size", st.Size())
	return key, nil
}

func (b *S3Backend) Download(ctx context.Context, id, destPath string) (string, error) {
	if err := ValidateKey(id); err != nil {
		return "", err
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", fmt.Errorf("%w: %s", common.ErrNotFound, id)
		}
		return "", fmt.Errorf("%w: get object: %v", common.ErrStorageBackend, err)
	}
	defer out.Body.Close()

	if err := writeFile(destPath, out.Body); err != nil {
		return "", err
	}
	return NameFromKey(id), nil
}

func (b *S3Backend) List(ctx context.Context) ([]FileRecord, error) {
	var records []FileRecord

	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(KeyPrefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list objects: %v", common.ErrStorageBackend, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := NameFromKey(key)
			records = append(records, FileRecord{
				ID:          key,
				Name:        name,
				MimeType:    MimeType(name),
				Size:        aws.ToInt64(obj.Size),
				CreatedTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	return records, nil
}

func (b *S3Backend) Delete(ctx context.Context, id string) (bool, error) {
	if err := ValidateKey(id); err != nil {
		return false, nil
	}

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("%w: head object: %v", common.ErrStorageBackend, err)
	}

	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id),
	}); err != nil {
		return false, fmt.Errorf("%w: delete object: %v", common.ErrStorageBackend, err)
	}
	return true, nil
}

// writeFile copies r into path, removing path if the copy fails.
func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", common.ErrFilesystem, path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("%w: copy to %s: %v", common.ErrStorageBackend, path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("%w: close %s: %v", common.ErrFilesystem, path, err)
	}
	return nil
}
