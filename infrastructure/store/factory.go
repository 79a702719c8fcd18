package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/openuhs/go-sentinel/entities"
	"github.com/openuhs/go-sentinel/infrastructure/store/keyspaces"
	"github.com/openuhs/go-sentinel/infrastructure/store/pebbledb"
)

// NewBackend creates the backend named by the configuration. The embedded
// backend answers to both "pebble" and the legacy "leveldb" name.
func NewBackend(cfg Config, logger *zap.SugaredLogger) (Backend, error) {
	switch cfg.Type {
	case TypeLevelDB, TypePebble:
		return pebbledb.NewStore(cfg.Parameter, logger)
	case TypeKeyspaces:
		return keyspaces.NewStore(keyspaces.Config{
			Host:       cfg.Parameter,
			Port:       cfg.Port,
			User:       cfg.User,
			Password:   cfg.Password,
			SSLVersion: cfg.SSLVersion,
		}, logger)
	case TypeNone:
		return NullBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown archive backend type %q", cfg.Type)
	}
}

// NullBackend discards writes and finds nothing. Used when archiving is
// disabled.
type NullBackend struct{}

func (NullBackend) Put(string, []byte) error         { return nil }
func (NullBackend) Get(string) ([]byte, error)       { return nil, entities.ErrStoreEntityNotFound }
func (NullBackend) Delete(string) error              { return nil }
func (NullBackend) DeletePrefix(string) (int, error) { return 0, nil }
func (NullBackend) IsOK() bool                       { return false }
func (NullBackend) Close() error                     { return nil }
