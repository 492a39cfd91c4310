package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcggEz/backend-gradalyze-capstone/internal/database"
)

// Bucket names served by this core. Storage policies scope writes to these
// two buckets only — and to nothing finer: any authenticated principal may
// touch any object inside them.
const (
	BucketTOR          = "tor"
	BucketCertificates = "certificates"
)

// AllowedBucket reports whether a bucket is one the storage policies permit.
func AllowedBucket(name string) bool {
	return name == BucketTOR || name == BucketCertificates
}

// Config for the S3-compatible backend. Endpoint is optional; when set,
// path-style addressing is used (MinIO and friends).
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	PublicURL string
}

// ObjectStore holds uploaded documents in S3-compatible storage and mirrors
// each object as a row in storage.objects, where the bucket policies apply.
// The payload write and the row write are two independent operations; a
// failure between them leaves an orphan, and callers do not compensate.
type ObjectStore struct {
	client    *s3.Client
	db        *pgxpool.Pool
	publicURL string
}

func NewObjectStore(ctx context.Context, db *pgxpool.Pool, cfg Config) (*ObjectStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}

	store := &ObjectStore{client: client, db: db, publicURL: publicURL}

	for _, bucket := range []string{BucketTOR, BucketCertificates} {
		if err := store.ensureBucket(ctx, bucket); err != nil {
			return nil, err
		}
	}

	return store, nil
}

func (s *ObjectStore) ensureBucket(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return fmt.Errorf("bucket %q does not exist and could not be created: %w", bucket, err)
	}
	return nil
}

// Upload writes the payload and records the object row under the caller's
// principal. The insert goes through the storage.objects policies, so a
// bucket outside the allow-list is rejected by the store, not by this code.
func (s *ObjectStore) Upload(ctx context.Context, role string, claims database.JWTClaims, bucket, path string, body []byte, contentType string) error {
	if !AllowedBucket(bucket) {
		return fmt.Errorf("bucket %q is not allowed", bucket)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", bucket, path, err)
	}

	_, err = database.ExecuteWithRLS(ctx, s.db, role, claims, func(tx pgx.Tx) (struct{}, error) {
		_, err := tx.Exec(ctx, `
			INSERT INTO storage.objects (bucket_id, name, content_type, size_bytes)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (bucket_id, name) DO UPDATE
			SET content_type = EXCLUDED.content_type,
			    size_bytes = EXCLUDED.size_bytes,
			    updated_at = NOW()
		`, bucket, path, contentType, len(body))
		if err != nil {
			return struct{}{}, fmt.Errorf("record object %s/%s: %w", bucket, path, err)
		}
		return struct{}{}, nil
	})
	return err
}

// Remove deletes the object row and then the payload. Either step can fail
// independently; an orphaned payload outliving its row is accepted.
func (s *ObjectStore) Remove(ctx context.Context, role string, claims database.JWTClaims, bucket, path string) error {
	if !AllowedBucket(bucket) {
		return fmt.Errorf("bucket %q is not allowed", bucket)
	}

	_, err := database.ExecuteWithRLS(ctx, s.db, role, claims, func(tx pgx.Tx) (struct{}, error) {
		_, err := tx.Exec(ctx, `DELETE FROM storage.objects WHERE bucket_id = $1 AND name = $2`, bucket, path)
		if err != nil {
			return struct{}{}, fmt.Errorf("delete object row %s/%s: %w", bucket, path, err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("delete object %s/%s: %w", bucket, path, err)
	}
	return nil
}

// PublicURL builds the public URL recorded in the users row for an object.
func (s *ObjectStore) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.publicURL, bucket, path)
}

// SanitizeObjectName reduces an uploaded filename to characters safe for a
// storage path, mirroring what the upload form historically accepted.
func SanitizeObjectName(name, fallback string) string {
	var b strings.Builder
	for _, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		case ch == '.' || ch == '-' || ch == '_':
			b.WriteRune(ch)
		default:
			b.WriteRune('-')
		}
	}
	safe := strings.Trim(b.String(), "-")
	if safe == "" {
		return fallback
	}
	return safe
}
