// Package pebbledb implements the archive backend on an embedded ordered
// key-value store.
package pebbledb

import (
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openuhs/go-sentinel/entities"
)

type Store struct {
	db     *pebble.DB
	logger *zap.SugaredLogger
}

func NewStore(storeDir string, logger *zap.SugaredLogger) (*Store, error) {
	db, err := pebble.Open(filepath.Join(storeDir, "tx-history-archive"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db: %v", err)
	}
	logger.Infow("Opened embedded archive store", "dir", storeDir)
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Put(key string, value []byte) error {
	err := s.db.Set([]byte(key), value, pebble.Sync)
	if err != nil {
		return errors.Wrapf(err, "setting key [%s]", key)
	}
	return nil
}

func (s *Store) Get(key string) ([]byte, error) {
	value, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, entities.ErrStoreEntityNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "getting value for key [%s]", key)
	}
	defer closer.Close()

	// The value is only valid until the closer is released.
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *Store) Delete(key string) error {
	err := s.db.Delete([]byte(key), pebble.Sync)
	if err != nil {
		return errors.Wrapf(err, "deleting key [%s]", key)
	}
	return nil
}

func (s *Store) DeletePrefix(prefix string) (int, error) {
	lower := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound(lower),
	})
	if err != nil {
		return 0, errors.Wrapf(err, "creating iterator for prefix [%s]", prefix)
	}

	var keys [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		keys = append(keys, key)
	}
	if err := iter.Close(); err != nil {
		return 0, errors.Wrap(err, "closing iterator")
	}

	deleted := 0
	for _, key := range keys {
		if err := s.db.Delete(key, pebble.Sync); err != nil {
			return deleted, errors.Wrapf(err, "deleting key [%s]", key)
		}
		deleted++
	}
	return deleted, nil
}

func (s *Store) IsOK() bool {
	return s.db != nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil if no such key exists.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
