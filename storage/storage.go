// Package storage keeps the original uploaded files. The hosted object store
// sits behind the Store interface; the local implementation writes to a
// directory on disk and serves as the default backend.
package storage

import (
	"context"
	"io"
)

// Store saves and retrieves uploaded file payloads. Save returns an opaque
// key used for later reads and deletes, plus a URL under which the file is
// reachable.
type Store interface {
	Save(ctx context.Context, filename string, r io.Reader) (key, url string, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
