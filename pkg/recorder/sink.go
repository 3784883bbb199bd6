package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Sink stores finished recordings. Paths are slash-separated.
type Sink interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

// LocalSink writes recordings below a directory on the local filesystem.
type LocalSink struct {
	root string
}

// NewLocalSink creates a LocalSink rooted at dir. The directory is created
// with parents if it does not exist.
func NewLocalSink(dir string) (*LocalSink, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &LocalSink{root: abs}, nil
}

// Root returns the absolute directory recordings are written to.
func (l *LocalSink) Root() string { return l.root }

func (l *LocalSink) Put(_ context.Context, path string, data []byte, _ string) error {
	full := filepath.Join(l.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("recorder: put %s: %w", path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("recorder: put %s: %w", path, err)
	}
	return nil
}

// S3Client is the subset of the S3 API used by S3Sink. *s3.Client satisfies
// it.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads recordings to an S3-compatible bucket. Object keys are the
// recording path under an optional prefix.
type S3Sink struct {
	client S3Client
	bucket string
	prefix string
}

// NewS3Sink creates an S3Sink. Pass "" for no prefix.
func NewS3Sink(client S3Client, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Sink) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

func (s *S3Sink) Put(ctx context.Context, path string, data []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(path)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("recorder: put s3://%s/%s: %s: %w", s.bucket, s.key(path), apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("recorder: put s3://%s/%s: %w", s.bucket, s.key(path), err)
	}
	return nil
}
