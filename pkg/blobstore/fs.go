package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FSStore serves objects from a directory tree: <root>/<bucket>/<object>.
type FSStore struct {
	fs       afero.Fs
	maxBytes int64
}

// NewFSStore roots the store at root inside fs. Use afero.NewOsFs() for disk
// and afero.NewMemMapFs() in tests.
func NewFSStore(fs afero.Fs, root string, maxBytes int64) *FSStore {
	if root != "" {
		fs = afero.NewBasePathFs(fs, root)
	}
	return &FSStore{fs: fs, maxBytes: maxBytes}
}

// Get implements Client.
func (s *FSStore) Get(ctx context.Context, bucket, object string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !validBucketName(bucket) {
		return nil, notFound(ErrBucketNotFound, bucket, object)
	}
	info, err := s.fs.Stat(bucket)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(ErrBucketNotFound, bucket, object)
		}
		return nil, fmt.Errorf("stat bucket %s: %w", bucket, err)
	}
	if !info.IsDir() {
		return nil, notFound(ErrBucketNotFound, bucket, object)
	}

	rel := filepath.FromSlash(object)
	if !filepath.IsLocal(rel) {
		return nil, notFound(ErrObjectNotFound, bucket, object)
	}

	f, err := s.fs.Open(filepath.Join(bucket, rel))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(ErrObjectNotFound, bucket, object)
		}
		return nil, fmt.Errorf("open %s/%s: %w", bucket, object, err)
	}
	defer f.Close()

	if st, err := f.Stat(); err == nil && st.IsDir() {
		return nil, notFound(ErrObjectNotFound, bucket, object)
	}

	data, err := readLimited(f, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, object, err)
	}
	return data, nil
}

// Put writes an object, creating the bucket directory as needed.
func (s *FSStore) Put(bucket, object string, data []byte) error {
	if !validBucketName(bucket) {
		return fmt.Errorf("invalid bucket name %q", bucket)
	}
	rel := filepath.FromSlash(object)
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("invalid object key %q", object)
	}

	name := filepath.Join(bucket, rel)
	if err := s.fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create bucket directory: %w", err)
	}
	return afero.WriteFile(s.fs, name, data, 0o644)
}

// MakeBucket creates an empty bucket.
func (s *FSStore) MakeBucket(bucket string) error {
	if !validBucketName(bucket) {
		return fmt.Errorf("invalid bucket name %q", bucket)
	}
	return s.fs.MkdirAll(bucket, 0o755)
}

func validBucketName(bucket string) bool {
	if bucket == "" || bucket == "." || bucket == ".." {
		return false
	}
	return !strings.ContainsAny(bucket, `/\`) && !strings.Contains(bucket, "\x00")
}
