package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/oshokin/release-updater/internal/domain/update"
)

// SchemeS3 is the URL scheme of mirror artifacts: s3://bucket/key.
const SchemeS3 = "s3"

var errBadS3URL = errors.New("s3 url must look like s3://bucket/key")

// S3Options describe an S3-compatible mirror endpoint.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Region skips the bucket location lookup when set.
	Region string
}

// S3Fetcher downloads artifacts from an S3-compatible object store.
type S3Fetcher struct {
	mc *minio.Client
}

// NewS3Fetcher creates a fetcher for the given endpoint.
func NewS3Fetcher(opts S3Options) (*S3Fetcher, error) {
	mc, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &S3Fetcher{mc: mc}, nil
}

// Fetch implements Fetcher for s3://bucket/key URLs.
func (f *S3Fetcher) Fetch(ctx context.Context, rawURL string, w io.Writer) error {
	bucket, key, err := ParseS3URL(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", update.ErrRemoteFetch, err)
	}

	obj, err := f.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("%w: get %s: %w", update.ErrRemoteFetch, rawURL, err)
	}

	defer func() {
		_ = obj.Close()
	}()

	if _, err = io.Copy(w, obj); err != nil {
		return fmt.Errorf("%w: read %s: %w", update.ErrRemoteFetch, rawURL, err)
	}

	return nil
}

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(rawURL string) (bucket, key string, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", errBadS3URL, err)
	}

	key = strings.TrimPrefix(parsed.Path, "/")
	if parsed.Scheme != SchemeS3 || parsed.Host == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", errBadS3URL, rawURL)
	}

	return parsed.Host, key, nil
}
