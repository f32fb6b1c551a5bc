package existing

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/dropzone/pkg/upload"
)

// S3API is the subset of *s3.Client used by S3.
type S3API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Presigner is implemented by *s3.PresignClient.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Options configures NewS3.
type S3Options struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // custom endpoint for MinIO compatibility

	// URLExpiry is how long presigned URLs are valid. Default: 24h.
	URLExpiry time.Duration
}

// S3 lists the objects under a bucket prefix as existing files with
// presigned GET URLs.
type S3 struct {
	client    S3API
	presigner Presigner
	bucket    string
	prefix    string
	urlExpiry time.Duration
}

// NewS3 loads the default AWS configuration and returns a lister.
//
//	l, err := existing.NewS3(ctx, existing.S3Options{Bucket: "invoices", Prefix: "client-42/"})
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, errors.New("existing: s3 bucket is required")
	}

	var optFns []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("existing: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(cfg, s3Opts...)
	return NewS3WithClient(client, s3.NewPresignClient(client), opts), nil
}

// NewS3WithClient returns a lister over an existing client.
func NewS3WithClient(client S3API, presigner Presigner, opts S3Options) *S3 {
	expiry := opts.URLExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &S3{
		client:    client,
		presigner: presigner,
		bucket:    opts.Bucket,
		prefix:    opts.Prefix,
		urlExpiry: expiry,
	}
}

// List pages through the prefix. Keys ending in "/" are skipped. The type
// comes from the key's extension, or from HeadObject when the extension
// is unknown.
func (s *S3) List(ctx context.Context) ([]upload.RemoteFile, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var files []upload.RemoteFile
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("existing: list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			url, err := s.presign(ctx, key)
			if err != nil {
				return nil, err
			}
			files = append(files, upload.RemoteFile{
				ID:       key,
				URL:      url,
				Type:     s.contentType(ctx, key),
				Size:     aws.ToInt64(obj.Size),
				Filename: path.Base(key),
			})
		}
	}
	return files, nil
}

func (s *S3) presign(ctx context.Context, key string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlExpiry))
	if err != nil {
		return "", fmt.Errorf("existing: presign %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *S3) contentType(ctx context.Context, key string) string {
	if typ := mime.TypeByExtension(strings.ToLower(path.Ext(key))); typ != "" {
		return typ
	}
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil || head.ContentType == nil {
		return "application/octet-stream"
	}
	return *head.ContentType
}
