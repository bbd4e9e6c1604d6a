// Package publish uploads rendered documents to the per cluster
// bucket. Keys are deterministic, so publication is idempotent: the
// same role always lands at the same key and re-running overwrites.
package publish

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kawsproject/kaws/pkg/retry"
)

var (
	// ErrTransientUpload is returned when an upload keeps failing
	// after exhausting the retry policy
	ErrTransientUpload = errors.New("transient upload failure")
	// ErrBucketNotFound is returned when the cluster bucket does not
	// exist. The bucket is a prerequisite created once per cluster, so
	// this is fatal.
	ErrBucketNotFound = errors.New("bucket not found")
)

// S3Client is the slice of the object store API the publisher needs
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an object store client for a region using the
// ambient credential chain.
func NewS3Client(ctx context.Context, region string) (S3Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}
	return s3.NewFromConfig(cfg), nil
}

// Publisher uploads documents under a retry policy
type Publisher struct {
	client S3Client
	policy retry.Policy
}

// NewPublisher returns a publisher using the given client and policy
func NewPublisher(client S3Client, policy retry.Policy) *Publisher {
	return &Publisher{
		client: client,
		policy: policy,
	}
}

// Publish uploads content to the given bucket and key, overwriting any
// existing object.
func (p *Publisher) Publish(ctx context.Context, bucket, key string, content []byte) error {
	err := p.policy.Do(ctx, func() error {
		_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(content),
			ContentType: aws.String("text/cloud-config"),
		})
		if err != nil {
			if isBucketNotFound(err) {
				return retry.Permanent(errors.Wrapf(ErrBucketNotFound, "bucket %q", bucket))
			}
			log.Warn().Err(err).Str("bucket", bucket).Str("key", key).Msg("upload failed, retrying")
			return errors.Wrap(ErrTransientUpload, err.Error())
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("bucket", bucket).Str("key", key).Msg("document published")
	return nil
}

func isBucketNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchBucket", "NotFound":
		return true
	}
	return false
}
