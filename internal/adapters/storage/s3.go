package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/output"
)

// S3Storage reads layer files from an S3 bucket or an S3 compatible
// endpoint such as MinIO.
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
	filter Filter
}

// S3Config holds S3 configuration.
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string // Custom endpoint, switches to path-style addressing
	AccessKeyID     string
	SecretAccessKey string
	Filter          Filter
}

// NewS3Storage creates a new S3 storage adapter. Without static keys the
// default AWS credential chain applies.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.TrimSuffix(cfg.Prefix, "/"),
		filter: cfg.Filter,
	}, nil
}

// List returns the layer files below the prefix.
func (s *S3Storage) List(ctx context.Context) ([]output.StorageObject, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}

	var objects []output.StorageObject
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			key := trimKey(aws.ToString(obj.Key), s.prefix)
			if key == "" || strings.HasSuffix(key, "/") || !s.filter.Match(key) {
				continue
			}
			objects = append(objects, s3Object(key, obj.Size, obj.LastModified, obj.ETag))
		}
	}
	return objects, nil
}

// Stat returns the metadata of key.
func (s *S3Storage) Stat(ctx context.Context, key string) (output.StorageObject, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(joinKey(s.prefix, key)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return output.StorageObject{}, domain.ErrObjectNotFound
		}
		return output.StorageObject{}, err
	}
	return s3Object(key, head.ContentLength, head.LastModified, head.ETag), nil
}

// Download fetches key into dest.
func (s *S3Storage) Download(ctx context.Context, key string, dest string) error {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(joinKey(s.prefix, key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return domain.ErrObjectNotFound
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return writeFile(dest, resp.Body)
}

func s3Object(key string, size *int64, modified *time.Time, etag *string) output.StorageObject {
	obj := output.StorageObject{
		Key:  key,
		Size: aws.ToInt64(size),
		ETag: strings.Trim(aws.ToString(etag), `"`),
	}
	if modified != nil {
		obj.LastModified = modified.Unix()
	}
	return obj
}
