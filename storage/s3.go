package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// S3API is the slice of the S3 client the driver uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type S3Driver struct {
	client S3API
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewS3Driver stores keys under prefix in bucket.
func NewS3Driver(client S3API, bucket, prefix string, logger zerolog.Logger) *S3Driver {
	return &S3Driver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With().Str("component", "s3Driver").Str("bucket", bucket).Logger(),
	}
}

func (d *S3Driver) objectKey(key string) string {
	if d.prefix == "" {
		return key
	}
	return d.prefix + "/" + strings.TrimPrefix(key, "/")
}

func (d *S3Driver) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return out.Body, nil
}

func (d *S3Driver) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return ObjectInfo{}, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		return ObjectInfo{}, fmt.Errorf("head object %s: %w", key, err)
	}
	return ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ModifiedAt:  aws.ToTime(out.LastModified),
	}, nil
}

// Delete issues one DeleteObjects call per MaxDeleteBatch keys. Per-key
// failures reported by S3 are joined into the returned error.
func (d *S3Driver) Delete(ctx context.Context, keys []string) error {
	var failures []error
	for _, batch := range Batches(keys, MaxDeleteBatch) {
		objects := make([]types.ObjectIdentifier, 0, len(batch))
		for _, key := range batch {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(d.objectKey(key))})
		}

		out, err := d.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(d.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			failures = append(failures, fmt.Errorf("delete %d objects: %w", len(batch), err))
			continue
		}
		for _, e := range out.Errors {
			failures = append(failures, fmt.Errorf("delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
		d.logger.Debug().Int("count", len(batch)-len(out.Errors)).Msg("deleted objects")
	}
	return errors.Join(failures...)
}
