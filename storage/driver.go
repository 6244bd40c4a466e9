package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by Read and Stat for unknown keys.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes stored bytes without reading them.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	ModifiedAt  time.Time
}

// Driver is the byte store behind file assets. The tree never inspects the
// bytes; it only streams them, checks they exist, and deletes them once no
// node references their key.
type Driver interface {
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Delete removes every key; missing keys are not an error.
	Delete(ctx context.Context, keys []string) error
}

// MaxDeleteBatch is the largest key set a single Delete call sends upstream.
const MaxDeleteBatch = 1000

// Batches splits keys into consecutive chunks of at most size keys.
func Batches(keys []string, size int) [][]string {
	if size <= 0 {
		size = MaxDeleteBatch
	}
	var out [][]string
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		out = append(out, keys[start:end])
	}
	return out
}
