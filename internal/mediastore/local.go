package mediastore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local serves video files from a directory on disk. The root is an
// explicit configuration value passed in by the caller.
type Local struct {
	root string
}

// NewLocal creates a local media store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{root: dir}, nil
}

func (l *Local) resolve(ref string) (string, error) {
	rel, err := normalizeRef(ref)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(rel)), nil
}

// Stat returns the file's current size in bytes.
func (l *Local) Stat(_ context.Context, ref string) (int64, error) {
	p, err := l.resolve(ref)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("stat %s: %w", ref, err)
	}
	return info.Size(), nil
}

// Open returns a reader over the whole file and its size.
func (l *Local) Open(_ context.Context, ref string) (io.ReadCloser, int64, error) {
	p, err := l.resolve(ref)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("open %s: %w", ref, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", ref, err)
	}
	return f, info.Size(), nil
}

// OpenRange returns a reader over bytes [start, end] inclusive.
func (l *Local) OpenRange(ctx context.Context, ref string, start, end int64) (io.ReadCloser, error) {
	f, _, err := l.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	file := f.(*os.File)
	if _, err := file.Seek(start, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek %s to %d: %w", ref, start, err)
	}
	return &limitedFile{f: file, r: io.LimitReader(file, end-start+1)}, nil
}

// Put writes the video under ref inside the root.
func (l *Local) Put(_ context.Context, ref string, r io.Reader, _ int64, _ string) error {
	p, err := l.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", ref, err)
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("create %s: %w", ref, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(p)
		return fmt.Errorf("write %s: %w", ref, err)
	}
	return f.Close()
}

// limitedFile bounds reads to the requested range while closing the
// underlying file handle.
type limitedFile struct {
	f *os.File
	r io.Reader
}

func (lf *limitedFile) Read(p []byte) (int, error) { return lf.r.Read(p) }
func (lf *limitedFile) Close() error               { return lf.f.Close() }
