// Package blobstore reads raw objects addressed by a bucket/object pair.
//
// Backends:
// - S3 (and S3-compatible endpoints) via the AWS SDK.
// - A directory tree, one directory per bucket, via afero.
// - A bbolt file, one bbolt bucket per bucket.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNotFound matches both ErrBucketNotFound and ErrObjectNotFound.
	ErrNotFound = errors.New("not found")
	// ErrBucketNotFound is returned when the bucket does not exist.
	ErrBucketNotFound = fmt.Errorf("bucket %w", ErrNotFound)
	// ErrObjectNotFound is returned when the bucket exists but the object does not.
	ErrObjectNotFound = fmt.Errorf("object %w", ErrNotFound)
	// ErrTooLarge is returned when an object exceeds the configured size limit.
	ErrTooLarge = errors.New("object exceeds size limit")
)

// Client fetches the full content of one object.
type Client interface {
	Get(ctx context.Context, bucket, object string) ([]byte, error)
}

// readLimited drains r, failing with ErrTooLarge when more than limit bytes are
// available. A limit of 0 disables the check.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	return buf.Bytes(), nil
}

func notFound(kind error, bucket, object string) error {
	if errors.Is(kind, ErrBucketNotFound) {
		return fmt.Errorf("%w: %s", kind, bucket)
	}
	return fmt.Errorf("%w: %s/%s", kind, bucket, object)
}
