package port

import (
	"context"
	"io"
)

// ObjectStorage uploads operator artifacts such as dead-letter archives.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error)
}
