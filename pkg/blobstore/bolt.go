package blobstore

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore serves objects from a single bbolt file: bbolt bucket = bucket, key = object.
type BoltStore struct {
	db       *bolt.DB
	maxBytes int64
}

// OpenBoltStore opens (creating if needed) the bbolt file at path.
func OpenBoltStore(path string, maxBytes int64) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}
	return &BoltStore{db: db, maxBytes: maxBytes}, nil
}

// Get implements Client.
func (s *BoltStore) Get(ctx context.Context, bucket, object string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return notFound(ErrBucketNotFound, bucket, object)
		}
		v := b.Get([]byte(object))
		if v == nil {
			return notFound(ErrObjectNotFound, bucket, object)
		}
		if s.maxBytes > 0 && int64(len(v)) > s.maxBytes {
			return fmt.Errorf("%w (%d bytes)", ErrTooLarge, s.maxBytes)
		}
		// v is only valid for the life of the transaction
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put stores an object, creating the bucket if needed.
func (s *BoltStore) Put(bucket, object string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		return b.Put([]byte(object), data)
	})
}

// Close releases the underlying file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
