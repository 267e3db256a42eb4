package build

import (
	"context"
	"errors"
	"io"
)

// ErrInvalidRange is returned by OpenArchive for a range outside the archive.
var ErrInvalidRange = errors.New("range not satisfiable")

// Storage mirrors archives to durable object storage.
type Storage interface {
	UploadArchive(ctx context.Context, params *StorageUploadArchiveParams) error
	OpenArchive(ctx context.Context, params *StorageOpenArchiveParams) (*StorageOpenArchiveResult, error)
}

type StorageUploadArchiveParams struct {
	Key         string // required
	Path        string // required
	ContentType string
}

type StorageOpenArchiveParams struct {
	Key   string // required
	Range string // HTTP Range header value, optional
}

// StorageOpenArchiveResult must be closed by the caller.
// ContentRange is set only when Range was honored.
type StorageOpenArchiveResult struct {
	Body         io.ReadCloser
	Size         int64
	ContentRange string
}

// ArchiveKey returns the object key of a job's archive.
func ArchiveKey(f Format, id string) string {
	return f.Collection() + "/" + id + "/" + id + "." + f.Extension()
}
