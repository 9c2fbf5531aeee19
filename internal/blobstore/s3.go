package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client is the subset of *s3.Client the store calls.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// NewS3Client builds a client from the default AWS credential chain.
func NewS3Client(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrInvalidConfig, err)
	}
	return s3.NewFromConfig(cfg), nil
}

type s3Store struct {
	client  S3Client
	bucket  string
	keys    keyspace
	maxSize int64
}

func newS3Store(cfg Config) (*s3Store, error) {
	if cfg.S3Client == nil {
		return nil, fmt.Errorf("%w: s3 client is required", ErrInvalidConfig)
	}
	st := &s3Store{
		client:  cfg.S3Client,
		bucket:  strings.TrimSpace(cfg.Bucket),
		keys:    newKeyspace(cfg.Prefix),
		maxSize: cfg.MaxGetSize,
	}
	if st.bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", ErrInvalidConfig)
	}
	if st.maxSize <= 0 {
		st.maxSize = defaultMaxGetSize
	}
	return st, nil
}

// Put uploads payload with a SHA-256 checksum so a truncated upload is rejected by S3.
func (s *s3Store) Put(ctx context.Context, key string, payload []byte, opts PutOptions) error {
	logical, full, err := s.keys.resolve(key)
	if err != nil {
		return err
	}
	in := &s3.PutObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(full),
		Body:              bytes.NewReader(payload),
		ContentLength:     aws.Int64(int64(len(payload))),
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
		Metadata:          cleanMetadata(opts.Metadata),
	}
	if ct := strings.TrimSpace(opts.ContentType); ct != "" {
		in.ContentType = aws.String(ct)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("blobstore/s3: put %s: %w", logical, err)
	}
	return nil
}

func (s *s3Store) Get(ctx context.Context, key string) (Object, error) {
	logical, full, err := s.keys.resolve(key)
	if err != nil {
		return Object{}, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(full)})
	switch {
	case isNotFound(err):
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, logical)
	case err != nil:
		return Object{}, fmt.Errorf("blobstore/s3: get %s: %w", logical, err)
	}
	defer func() { _ = out.Body.Close() }()

	if n := aws.ToInt64(out.ContentLength); n > s.maxSize {
		return Object{}, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, logical, n, s.maxSize)
	}
	// ContentLength is optional, so the body is still read under the limit.
	data, err := io.ReadAll(io.LimitReader(out.Body, s.maxSize+1))
	if err != nil {
		return Object{}, fmt.Errorf("blobstore/s3: read %s: %w", logical, err)
	}
	if int64(len(data)) > s.maxSize {
		return Object{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, logical, s.maxSize)
	}
	return Object{
		Key:          logical,
		Data:         data,
		ContentType:  aws.ToString(out.ContentType),
		Metadata:     cleanMetadata(out.Metadata),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

func (s *s3Store) Exists(ctx context.Context, key string) (bool, error) {
	logical, full, err := s.keys.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(full)})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("blobstore/s3: head %s: %w", logical, err)
	}
}

// isNotFound recognises both the modeled S3 errors and the bare 404 code HeadObject returns.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var (
		noKey    *s3types.NoSuchKey
		notFound *s3types.NotFound
	)
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}
