// Package builds3 mirrors build archives to S3-compatible object storage.
package builds3

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/k11v/arframe/internal/build"
)

var _ build.Storage = (*Storage)(nil)

type Storage struct {
	client *s3.Client // required
	bucket string     // required
}

func NewStorage(client *s3.Client, bucket string) *Storage {
	return &Storage{client: client, bucket: bucket}
}

// UploadArchive implements build.Storage.
func (s *Storage) UploadArchive(ctx context.Context, params *build.StorageUploadArchiveParams) error {
	f, err := os.Open(params.Path)
	if err != nil {
		return fmt.Errorf("builds3.UploadArchive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("builds3.UploadArchive: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &params.Key,
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	}
	if params.ContentType != "" {
		input.ContentType = &params.ContentType
	}

	if _, err = s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("builds3.UploadArchive: %w", err)
	}

	return nil
}

// OpenArchive implements build.Storage.
func (s *Storage) OpenArchive(ctx context.Context, params *build.StorageOpenArchiveParams) (*build.StorageOpenArchiveResult, error) {
	input := &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &params.Key,
	}
	if params.Range != "" {
		input.Range = &params.Range
	}

	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, build.ErrNotFound
		}
		if apiErr := smithy.APIError(nil); errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			return nil, build.ErrInvalidRange
		}
		return nil, fmt.Errorf("builds3.OpenArchive: %w", err)
	}

	return &build.StorageOpenArchiveResult{
		Body:         out.Body,
		Size:         aws.ToInt64(out.ContentLength),
		ContentRange: aws.ToString(out.ContentRange),
	}, nil
}

func isNotFound(err error) bool {
	if noSuchKey := (*types.NoSuchKey)(nil); errors.As(err, &noSuchKey) {
		return true
	}
	if apiErr := smithy.APIError(nil); errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey"
	}
	return false
}
