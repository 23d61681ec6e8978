// Package journal records upload batches in a local BadgerDB.
//
// The journal is an audit trail only: listing never consults it, and a
// journal write failure never fails an upload.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/uprelay/uprelay/internal/common/errors"
	"github.com/uprelay/uprelay/internal/common/logger"
)

// BatchRecord describes one accepted upload batch.
type BatchRecord struct {
	ID         string    `json:"id"`
	Count      int       `json:"count"`
	Keys       []string  `json:"keys"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Store provides upload journal operations.
type Store interface {
	// Record appends one batch record.
	Record(ctx context.Context, rec *BatchRecord) error

	// Recent returns up to limit batch records, newest first.
	Recent(ctx context.Context, limit int) ([]*BatchRecord, error)

	// Close closes the store.
	Close() error
}

// BadgerStore implements Store using BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// Keys are "batch:<unix-nanos>:<id>" so reverse iteration yields newest
// batches first.
const prefixBatch = "batch:"

// NewBadgerStore creates a new BadgerStore.
func NewBadgerStore(dbPath string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Disable badger's default logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	logger.L().Info("upload journal opened")

	return &BadgerStore{db: db}, nil
}

// Record appends one batch record.
func (s *BadgerStore) Record(ctx context.Context, rec *BatchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal batch record: %w", err)
	}

	key := []byte(fmt.Sprintf("%s%020d:%s", prefixBatch, rec.UploadedAt.UnixNano(), rec.ID))
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return errors.E("BadgerStore.Record", errors.ErrUploadFailed, err)
	}
	return nil
}

// Recent returns up to limit batch records, newest first.
func (s *BadgerStore) Recent(ctx context.Context, limit int) ([]*BatchRecord, error) {
	var result []*BatchRecord
	prefix := []byte(prefixBatch)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the last key under the prefix.
		seek := append(append([]byte{}, prefix...), 0xff)
		count := 0
		for it.Seek(seek); it.ValidForPrefix(prefix) && (limit <= 0 || count < limit); it.Next() {
			var rec BatchRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				continue
			}
			result = append(result, &rec)
			count++
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

// Close closes the store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
