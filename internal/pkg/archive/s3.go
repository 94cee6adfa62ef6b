package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

// PutObjectAPI is the slice of the S3 client the archiver uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds S3 archive configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Prefix          string
}

// IsEnabled returns true when a bucket is configured
func (c Config) IsEnabled() bool {
	return c.BucketName != ""
}

func (c Config) validate() error {
	if c.AccessKeyID == "" {
		return errors.New("WEBHOOK_ARCHIVE_ACCESS_KEY_ID is required when the archive is enabled")
	}
	if c.SecretAccessKey == "" {
		return errors.New("WEBHOOK_ARCHIVE_SECRET_ACCESS_KEY is required when the archive is enabled")
	}
	return nil
}

// S3Archiver stores raw verified webhook payloads as JSON objects.
type S3Archiver struct {
	api    PutObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Client builds an S3 client from static credentials.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible providers expect path-style URLs
			o.UsePathStyle = true
		}
	}), nil
}

func NewS3Archiver(api PutObjectAPI, cfg Config) *S3Archiver {
	return &S3Archiver{
		api:    api,
		bucket: cfg.BucketName,
		prefix: strings.Trim(cfg.Prefix, "/"),
		now:    time.Now,
	}
}

// ObjectKey returns prefix/YYYY/MM/DD/<event id>.json
func (a *S3Archiver) ObjectKey(eventID string, at time.Time) string {
	at = at.UTC()
	key := fmt.Sprintf("%04d/%02d/%02d/%s.json", at.Year(), at.Month(), at.Day(), sanitizeKey(eventID))
	if a.prefix == "" {
		return key
	}
	return a.prefix + "/" + key
}

func (a *S3Archiver) Archive(ctx context.Context, eventID, eventType string, payload []byte) error {
	key := a.ObjectKey(eventID, a.now())
	_, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"event-type": eventType,
			"event-id":   eventID,
		},
	})
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", key, err)
	}
	log.Debugf("[Archive] stored webhook %s at s3://%s/%s", eventID, a.bucket, key)
	return nil
}

func sanitizeKey(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, id)
}
