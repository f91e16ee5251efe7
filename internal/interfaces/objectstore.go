package interfaces

import "context"

// ObjectStore resolves time-limited read URLs for uploaded files. Upload
// signing and bucket management live outside the pipeline.
type ObjectStore interface {
	GetReadURL(ctx context.Context, key string) (string, error)
}
