// Package s3store implements repository.PhotoStore on an S3-compatible bucket.
//
// Objects are keyed "<prefix><year>/<name>", mirroring the directory layout of
// the filesystem store so the two backends are interchangeable.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sakif/photo-gallery/internal/apperror"
	"github.com/sakif/photo-gallery/internal/model"
	"github.com/sakif/photo-gallery/internal/repository"
)

// Client is the subset of *s3.Client the store uses. It exists so tests can
// substitute an in-memory fake.
type Client interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Options configures a bucket connection built by NewFromOptions.
type Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // optional, for MinIO and other S3-compatible servers
	AccessKeyID     string // optional; the default credential chain is used when empty
	SecretAccessKey string
	UsePathStyle    bool
}

// Store is an S3-backed photo store.
type Store struct {
	client   Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// New wraps an existing client.
func New(client Client, bucket, prefix string) *Store {
	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

// NewFromOptions loads AWS configuration and builds a Store.
func NewFromOptions(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3store: bucket is required")
	}

	loaders := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loaders = append(loaders, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("s3store: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return New(client, opts.Bucket, opts.Prefix), nil
}

func (s *Store) key(year, name string) string {
	return s.prefix + year + "/" + name
}

// List returns the objects directly under the year prefix.
func (s *Store) List(ctx context.Context, year string) ([]model.Photo, error) {
	yearPrefix := s.prefix + year + "/"
	photos := []model.Photo{}

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(yearPrefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3store: listing %s: %w", yearPrefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), yearPrefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			photos = append(photos, model.Photo{
				Year:     year,
				Filename: name,
				URL:      repository.PhotoURL(year, name),
			})
		}
	}
	return photos, nil
}

// Put uploads r under the year prefix. Large bodies go through multipart upload.
func (s *Store) Put(ctx context.Context, year, name string, r io.Reader) (model.Photo, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(year, name)),
		Body:   r,
	})
	if err != nil {
		return model.Photo{}, fmt.Errorf("s3store: uploading %s/%s: %w", year, name, err)
	}
	return model.Photo{Year: year, Filename: name, URL: repository.PhotoURL(year, name)}, nil
}

// Delete removes the object, reporting false when it does not exist.
// S3 deletes are idempotent, so existence is checked with HeadObject first.
func (s *Store) Delete(ctx context.Context, year, name string) (bool, error) {
	key := s.key(year, name)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3store: checking %s: %w", key, err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return false, fmt.Errorf("s3store: deleting %s: %w", key, err)
	}
	return true, nil
}

// Open streams an object's body. The caller closes it.
func (s *Store) Open(ctx context.Context, year, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(year, name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("photo", year+"/"+name)
		}
		return nil, fmt.Errorf("s3store: fetching %s/%s: %w", year, name, err)
	}
	return out.Body, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

var _ repository.PhotoStore = (*Store)(nil)
