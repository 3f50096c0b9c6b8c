package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options selects the region and, for S3-compatible stores, a custom endpoint.
type S3Options struct {
	Region    string
	Endpoint  string
	PathStyle bool
}

// S3Store reads objects from Amazon S3.
type S3Store struct {
	api      S3API
	maxBytes int64
}

// NewS3Store builds a client from the default AWS credential chain.
func NewS3Store(ctx context.Context, opts S3Options, maxBytes int64) (*S3Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return NewS3StoreWithAPI(client, maxBytes), nil
}

// NewS3StoreWithAPI wraps an existing client.
func NewS3StoreWithAPI(api S3API, maxBytes int64) *S3Store {
	return &S3Store{api: api, maxBytes: maxBytes}
}

// Get implements Client.
func (s *S3Store) Get(ctx context.Context, bucket, object string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	})
	if err != nil {
		if kind := classifyS3Error(err); kind != nil {
			return nil, notFound(kind, bucket, object)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, object, err)
	}
	defer out.Body.Close()

	data, err := readLimited(out.Body, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, object, err)
	}
	return data, nil
}

func classifyS3Error(err error) error {
	var noBucket *types.NoSuchBucket
	if errors.As(err, &noBucket) {
		return ErrBucketNotFound
	}
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return ErrObjectNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return ErrBucketNotFound
		case "NoSuchKey", "NotFound":
			return ErrObjectNotFound
		}
	}
	return nil
}
