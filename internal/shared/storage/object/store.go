package object

import (
	"context"
	"io"
	"time"
)

// ObjectStore stores compliance document blobs under a per-company namespace.
type ObjectStore interface {
	Save(ctx context.Context, namespace string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}

// DownloadSigner produces a time-limited URL for reading a stored object.
type DownloadSigner interface {
	DownloadURL(ctx context.Context, storageKey string) (string, error)
}

// UploadSigner produces a time-limited URL a client can PUT an object to.
type UploadSigner interface {
	UploadURL(ctx context.Context, storageKey, contentType string) (url string, expires time.Duration, err error)
}
