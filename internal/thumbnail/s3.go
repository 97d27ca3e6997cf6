package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

const defaultPresignTTL = time.Hour

// ObjectRefScheme prefixes stored references to private bucket objects.
const ObjectRefScheme = "s3://"

// S3API is the subset of *s3.Client used to store thumbnails.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Presigner is the subset of *s3.PresignClient used to sign read URLs.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Config configures an S3Uploader.
type S3Config struct {
	Bucket string
	Region string
	// PublicBaseURL, when set, is used to build plain object URLs instead of
	// presigned ones (e.g. a CDN in front of the bucket).
	PublicBaseURL string
	// PresignTTL is how long a URL returned by ResolveURL stays valid.
	PresignTTL time.Duration
}

// S3Uploader stores thumbnails in an S3 bucket.
type S3Uploader struct {
	api     S3API
	presign Presigner
	cfg     S3Config
}

// NewS3Uploader wraps existing clients.
func NewS3Uploader(api S3API, presign Presigner, cfg S3Config) *S3Uploader {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = defaultPresignTTL
	}
	return &S3Uploader{api: api, presign: presign, cfg: cfg}
}

// NewS3UploaderFromEnv loads AWS credentials from the default chain.
func NewS3UploaderFromEnv(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)

	log.Info().
		Str("bucket", cfg.Bucket).
		Str("region", awsCfg.Region).
		Msg("S3 thumbnail storage configured")

	return NewS3Uploader(client, s3.NewPresignClient(client), cfg), nil
}

// Upload puts data at key and returns what the recipe should store: a
// public URL when PublicBaseURL is set, otherwise an s3://bucket/key
// reference that ResolveURL signs each time the recipe is served.
func (u *S3Uploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	if u.cfg.PublicBaseURL != "" {
		return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + key, nil
	}
	return ObjectRefScheme + u.cfg.Bucket + "/" + key, nil
}

// ResolveURL turns a stored thumbnail value into a URL the browser can load.
// References to objects in this bucket get a fresh presigned GET URL; any
// other value is returned unchanged.
func (u *S3Uploader) ResolveURL(ctx context.Context, stored string) (string, error) {
	key, ok := strings.CutPrefix(stored, ObjectRefScheme+u.cfg.Bucket+"/")
	if !ok || key == "" {
		return stored, nil
	}
	req, err := u.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(u.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
