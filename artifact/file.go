package artifact

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vinayprograms/renderkit/errors"
)

// FileStore keeps artifacts as files in one directory.
// Writes go to a temp file in the same directory and are renamed into place,
// so a reader never observes a partial artifact.
type FileStore struct {
	dir  string
	perm os.FileMode
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithFileMode sets the permissions of written artifacts. Default: 0644
func WithFileMode(perm os.FileMode) FileOption {
	return func(s *FileStore) {
		s.perm = perm
	}
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeIO, "create artifact directory",
			errors.WithMetadata("dir", dir))
	}
	s := &FileStore{dir: dir, perm: 0o644}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the file path for id.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, id)
}

// Exists reports whether a non-empty regular file exists for id.
func (s *FileStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := ValidateID(id); err != nil {
		return false, err
	}
	info, err := os.Stat(s.Path(id))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, errors.WrapWithCode(err, errors.ErrCodeIO, "stat artifact",
			errors.WithMetadata("artifact", id))
	}
	return info.Mode().IsRegular() && info.Size() > 0, nil
}

// Write stores data under id atomically.
func (s *FileStore) Write(ctx context.Context, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateID(id); err != nil {
		return err
	}

	path := s.Path(id)
	fail := func(err error, what string) error {
		return errors.WrapWithCode(err, errors.ErrCodeIO, what, errors.WithMetadata("artifact", id))
	}

	tmp, err := os.CreateTemp(s.dir, ".renderkit-tmp-*")
	if err != nil {
		return fail(err, "create temp file")
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fail(err, "write temp file")
	}
	if err := tmp.Chmod(s.perm); err != nil {
		_ = tmp.Close()
		cleanup()
		return fail(err, "chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fail(err, "close temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fail(err, "rename artifact into place")
	}
	return nil
}

// Read returns the bytes stored under id.
func (s *FileStore) Read(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, errors.WrapWithCode(err, errors.ErrCodeIO, "read artifact",
			errors.WithMetadata("artifact", id))
	}
	return data, nil
}
