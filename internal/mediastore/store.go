// Package mediastore resolves a camera's storage reference to a readable
// byte source. Two backends exist: local disk rooted at the configured
// upload directory, and S3 using ranged object reads.
package mediastore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when the referenced video file/object does not exist.
	ErrNotFound = errors.New("media not found")
)

// Store resolves storage references to byte sources. References may carry a
// leading path separator (e.g. "/uploads/x.mp4") which is normalized away.
type Store interface {
	// Stat returns the current total length of the referenced video in bytes.
	Stat(ctx context.Context, ref string) (int64, error)
	// Open returns a reader over the whole video and its total length.
	Open(ctx context.Context, ref string) (io.ReadCloser, int64, error)
	// OpenRange returns a reader over bytes [start, end] inclusive.
	OpenRange(ctx context.Context, ref string, start, end int64) (io.ReadCloser, error)
	// Put stores the video under the given reference.
	Put(ctx context.Context, ref string, r io.Reader, size int64, contentType string) error
}

// normalizeRef cleans a storage reference: strips any leading separator and
// rejects traversal outside the store root.
func normalizeRef(ref string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(ref, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", ErrNotFound
	}
	return cleaned, nil
}
