// Package rpfiles resolves stored file keys into URLs for file typed fields.
package rpfiles

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// Name is the module name variants list to use file fields.
const Name = "rpfiles"

// ErrNoKey is returned for an empty file key.
var ErrNoKey = errors.New("empty file key")

// StaticResolver serves files from a fixed base URL, such as an upload directory behind
// the web server.
type StaticResolver struct {
	BaseURL string
}

func (r StaticResolver) Resolve(_ context.Context, key string) (string, error) {

	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrNoKey
	}

	base := strings.TrimRight(r.BaseURL, "/")
	if base == "" {
		return "/" + key, nil
	}
	return base + "/" + key, nil
}

// Config holds the object storage connection settings.
type Config struct {
	Endpoint        string // e.g. "localhost:9000"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string
	Bucket          string
	Expiry          time.Duration // Lifetime of presigned links, 1h when zero
}

// MinioResolver presigns GET links for objects in a bucket.
type MinioResolver struct {
	mc     *minio.Client
	bucket string
	expiry time.Duration
}

func NewMinioResolver(cfg Config) (*MinioResolver, error) {

	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("rpfiles: endpoint and bucket are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "minio client")
	}

	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &MinioResolver{mc: mc, bucket: cfg.Bucket, expiry: expiry}, nil
}

func (r *MinioResolver) Resolve(ctx context.Context, key string) (string, error) {

	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrNoKey
	}

	u, err := r.mc.PresignedGetObject(ctx, r.bucket, key, r.expiry, url.Values{})
	if err != nil {
		return "", errors.Wrapf(err, "presign %s", key)
	}
	return u.String(), nil
}
