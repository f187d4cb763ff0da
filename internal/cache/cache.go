// Package cache keeps statement uploads that could not reach the backend in
// a local bolt database so they can be resubmitted later.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

var bucketName = []byte("pending_uploads")

// ErrNotFound is returned when no upload is cached under a filename.
var ErrNotFound = errors.New("cached upload not found")

// openTimeout bounds the wait for the file lock held by another process.
const openTimeout = time.Second

// Cache is a bolt-backed store of pending uploads keyed by filename. A later
// Put for the same filename replaces the earlier one.
type Cache struct {
	db *bolt.DB
}

// Open opens or creates the cache file at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("cache: opening %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: creating bucket: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the database file.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Put stores upload under its Name.
func (c *Cache) Put(upload *domain.StatementUpload) error {
	if upload == nil || upload.Name == "" {
		return fmt.Errorf("cache: upload must have a name")
	}
	val, err := json.Marshal(upload)
	if err != nil {
		return fmt.Errorf("cache: encoding %s: %w", upload.Name, err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(upload.Name), val)
	})
}

// Get returns the upload cached under name.
func (c *Cache) Get(name string) (*domain.StatementUpload, error) {
	var upload *domain.StatementUpload
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("cache: %s: %w", name, ErrNotFound)
		}
		upload = &domain.StatementUpload{}
		return json.Unmarshal(v, upload)
	})
	if err != nil {
		return nil, err
	}
	return upload, nil
}

// List returns every cached upload ordered by filename.
func (c *Cache) List() ([]*domain.StatementUpload, error) {
	uploads := make([]*domain.StatementUpload, 0)
	err := c.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketName).Cursor()
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			var u domain.StatementUpload
			if err := json.Unmarshal(v, &u); err != nil {
				return fmt.Errorf("cache: decoding %s: %w", k, err)
			}
			uploads = append(uploads, &u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return uploads, nil
}

// Delete removes name. Deleting a missing key is not an error.
func (c *Cache) Delete(name string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(name))
	})
}

// Len reports the number of cached uploads.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketName).Stats().KeyN
		return nil
	})
	return n, err
}
