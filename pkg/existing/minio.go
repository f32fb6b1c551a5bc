package existing

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vango-dev/dropzone/pkg/upload"
)

// MinIOAPI is the subset of *minio.Client used by MinIO.
type MinIOAPI interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// MinIOOptions configures NewMinIO.
type MinIOOptions struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string

	// URLExpiry is how long presigned URLs are valid. Default: 24h.
	URLExpiry time.Duration
}

// MinIO lists objects from a MinIO bucket.
type MinIO struct {
	client    MinIOAPI
	bucket    string
	prefix    string
	urlExpiry time.Duration
}

// NewMinIO connects with static credentials.
func NewMinIO(opts MinIOOptions) (*MinIO, error) {
	if opts.Bucket == "" {
		return nil, errors.New("existing: minio bucket is required")
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(opts.Endpoint, "https://"), "http://")
	if i := strings.Index(endpoint, "/"); i != -1 {
		endpoint = endpoint[:i]
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("existing: minio client: %w", err)
	}
	return NewMinIOWithClient(client, opts), nil
}

// NewMinIOWithClient returns a lister over an existing client.
func NewMinIOWithClient(client MinIOAPI, opts MinIOOptions) *MinIO {
	expiry := opts.URLExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &MinIO{client: client, bucket: opts.Bucket, prefix: opts.Prefix, urlExpiry: expiry}
}

// List walks the prefix recursively.
func (m *MinIO) List(ctx context.Context) ([]upload.RemoteFile, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var files []upload.RemoteFile
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: m.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("existing: list %s/%s: %w", m.bucket, m.prefix, obj.Err)
		}
		if obj.Key == "" || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		u, err := m.client.PresignedGetObject(ctx, m.bucket, obj.Key, m.urlExpiry, nil)
		if err != nil {
			return nil, fmt.Errorf("existing: presign %s: %w", obj.Key, err)
		}
		typ := obj.ContentType
		if typ == "" {
			typ = mime.TypeByExtension(strings.ToLower(path.Ext(obj.Key)))
		}
		files = append(files, upload.RemoteFile{
			ID:       obj.Key,
			URL:      u.String(),
			Type:     typ,
			Size:     obj.Size,
			Filename: path.Base(obj.Key),
		})
	}
	return files, nil
}
