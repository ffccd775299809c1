package tokenstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ashid-platform/auth-service/internal/common"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config carries connection settings for an S3-compatible backend
// (AWS S3 or MinIO).
type S3Config struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
	Prefix       string
}

// S3Store keeps token records as JSON objects under
// <prefix>/<subject>/<jti>. It suits deployments that already run MinIO for
// other secrets and do not want a Vault or Redis dependency.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds the client and heads the bucket once, so a wrong
// endpoint or missing bucket fails at startup.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.RootUser,
			cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = true // MINIO compatibility
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("%w: s3 head bucket %q: %v", common.ErrStoreUnavailable, cfg.Bucket, err)
	}

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) objectKey(subject, tokenID string) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, subject, tokenID)
}

func (s *S3Store) Put(ctx context.Context, rec Record) error {
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(rec.Subject, rec.TokenID)),
		Body:        bytes.NewReader(b),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("%w: s3 put: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, subject, tokenID string) (Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(subject, tokenID)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return Record{}, common.ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: s3 get: %v", common.ErrStoreUnavailable, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return Record{}, fmt.Errorf("%w: s3 read: %v", common.ErrStoreUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *S3Store) MarkRevoked(ctx context.Context, subject, tokenID string) error {
	rec, err := s.Get(ctx, subject, tokenID)
	if err != nil {
		return err
	}
	if rec.Revoked {
		return nil
	}
	now := time.Now()
	rec.Revoked = true
	rec.RevokedAt = &now
	return s.Put(ctx, rec)
}

func (s *S3Store) ListByUser(ctx context.Context, subject string) ([]string, error) {
	prefix := fmt.Sprintf("%s/%s/", s.prefix, subject)

	var ids []string
	var continuation *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: s3 list: %v", common.ErrStoreUnavailable, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			ids = append(ids, key[len(prefix):])
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}
	return ids, nil
}

func (s *S3Store) Close() error { return nil }
