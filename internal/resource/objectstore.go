package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreConfig addresses a resource bundle kept in an S3-compatible
// bucket.
type ObjectStoreConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

func (c ObjectStoreConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("object store endpoint is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("object store bucket is required")
	}
	return nil
}

// objectStore is the subset of *minio.Client the provider uses.
type objectStore interface {
	StatObject(ctx context.Context, bucket, name string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucket, name string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// ObjectStoreProvider serves resources from an object store bucket. Resource
// names are appended to the configured prefix.
type ObjectStoreProvider struct {
	client objectStore
	bucket string
	prefix string
}

// NewObjectStoreProvider connects a provider to the bucket in cfg.
func NewObjectStoreProvider(cfg ObjectStoreConfig) (*ObjectStoreProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &ObjectStoreProvider{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (p *ObjectStoreProvider) Name() string { return "s3:" + p.bucket }

func (p *ObjectStoreProvider) key(name string) string {
	return path.Join(p.prefix, name)
}

// Open stats the object before fetching it, since minio defers GetObject
// errors to the first read.
func (p *ObjectStoreProvider) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := p.key(name)
	if _, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{}); err != nil {
		return nil, classifyObjectError(key, err)
	}
	obj, err := p.client.GetObject(ctx, p.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyObjectError(key, err)
	}
	return obj, nil
}

// classifyObjectError maps a missing bucket or key onto fs.ErrNotExist.
func classifyObjectError(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return &fs.PathError{Op: "open", Path: key, Err: fs.ErrNotExist}
	}
	return fmt.Errorf("stat object %s: %w", key, err)
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
