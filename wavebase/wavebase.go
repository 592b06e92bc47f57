package wavebase

import (
	"errors"
	"fmt"
	"time"

	"git.mills.io/prologic/bitcask"

	"wavebind/logger"
)

// DefaultMaxValueSize raises bitcask's 64KB value ceiling so large schemas fit.
const DefaultMaxValueSize = 10 * 1024 * 1024

// DB is a gzip-compressing key/value store keyed by hashed logical keys.
type DB struct {
	data *bitcask.Bitcask
	stop chan struct{}
}

// Open opens (or creates) the store at path.
func Open(path string, maxValueSize int) (*DB, error) {
	if maxValueSize <= 0 {
		maxValueSize = DefaultMaxValueSize
	}
	data, err := bitcask.Open(path, bitcask.WithMaxValueSize(uint64(maxValueSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return &DB{data: data, stop: make(chan struct{})}, nil
}

// MergeEvery reclaims space on the given interval until Close.
func (db *DB) MergeEvery(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-db.stop:
				return
			case <-ticker.C:
				db.Merge()
			}
		}
	}()
}

func (db *DB) Merge() {
	log := logger.Service("wavebase")
	log.Info("Merging database to reclaim space...")
	if err := db.data.Merge(); err != nil {
		log.Error("Error merging database", "error", err)
	} else {
		log.Info("Database merge complete.")
	}
}

func (db *DB) Close() error {
	select {
	case <-db.stop:
	default:
		close(db.stop)
	}
	return db.data.Close()
}

func (db *DB) PutBytes(key string, value []byte) error {
	compressedValue, err := compress(value)
	if err != nil {
		return err
	}
	return db.data.Put(CacheKey(key), compressedValue)
}

func (db *DB) PutBytesExpire(key string, value []byte, ttl time.Duration) error {
	compressedValue, err := compress(value)
	if err != nil {
		return err
	}
	return db.data.PutWithTTL(CacheKey(key), compressedValue, ttl)
}

func (db *DB) Get(key string) ([]byte, error) {
	compressedValue, err := db.data.Get(CacheKey(key))
	if err != nil {
		return nil, err
	}
	return decompress(compressedValue)
}

func (db *DB) Has(key string) bool {
	return db.data.Has(CacheKey(key))
}

func (db *DB) Delete(key string) error {
	return db.data.Delete(CacheKey(key))
}

// IsNotFound reports whether err means the key is absent or expired.
func IsNotFound(err error) bool {
	return errors.Is(err, bitcask.ErrKeyNotFound) || errors.Is(err, bitcask.ErrKeyExpired)
}
