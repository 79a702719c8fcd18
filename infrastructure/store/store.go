// Package store defines the durable key-value contract the transaction
// history archive runs on, and the factory selecting a concrete backend.
package store

// Backend is an ordered key-value store with prefix deletion. Keys are
// binary-safe strings.
type Backend interface {
	// Put writes a record, overwriting any existing value.
	Put(key string, value []byte) error
	// Get reads a record. Returns entities.ErrStoreEntityNotFound if the key
	// does not exist.
	Get(key string) ([]byte, error)
	// Delete removes a record. Deleting a missing key is not an error.
	Delete(key string) error
	// DeletePrefix removes every record whose key starts with prefix and
	// returns the number of removed records.
	DeletePrefix(prefix string) (int, error)
	// IsOK reports whether the backend is usable.
	IsOK() bool
	Close() error
}

// Backend type names accepted in configuration.
const (
	TypeLevelDB   = "leveldb"
	TypePebble    = "pebble"
	TypeKeyspaces = "keyspaces"
	TypeNone      = "none"
)

// Config carries the archive backend settings.
type Config struct {
	Type       string
	Parameter  string
	Port       int
	User       string
	Password   string
	SSLVersion string
}
