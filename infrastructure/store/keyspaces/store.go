// Package keyspaces implements the archive backend on a remote wide-column
// store speaking CQL (Amazon Keyspaces / Apache Cassandra).
package keyspaces

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openuhs/go-sentinel/entities"
)

const (
	keyspace = "tx_history"
	table    = "tx_history.tx_records"

	insertStmt = "INSERT INTO " + table + " (key, value) VALUES (?, ?)"
	selectStmt = "SELECT value FROM " + table + " WHERE key = ?"
	deleteStmt = "DELETE FROM " + table + " WHERE key = ?"
)

type Config struct {
	Host       string
	Port       int
	User       string
	Password   string
	SSLVersion string
}

type Store struct {
	session *gocql.Session
	logger  *zap.SugaredLogger
	ok      bool
}

func NewStore(cfg Config, logger *zap.SugaredLogger) (*Store, error) {
	cluster := gocql.NewCluster(cfg.Host)
	cluster.Port = cfg.Port
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 10 * time.Second
	cluster.Authenticator = gocql.PasswordAuthenticator{
		Username: cfg.User,
		Password: cfg.Password,
	}

	if strings.EqualFold(cfg.SSLVersion, "none") {
		logger.Infow("Not using SSL for the archive store connection")
	} else {
		minVersion, err := tlsVersion(cfg.SSLVersion)
		if err != nil {
			logger.Warnw("Unsupported SSL version, falling back to TLS1_2",
				"sslVersion", cfg.SSLVersion)
			minVersion = tls.VersionTLS12
		}
		cluster.SslOpts = &gocql.SslOptions{
			Config:                 &tls.Config{MinVersion: minVersion},
			EnableHostVerification: false,
		}
		logger.Infow("Using SSL for the archive store connection",
			"sslVersion", cfg.SSLVersion)
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connecting to keyspaces cluster: %v", err)
	}
	logger.Infow("Connected to keyspaces cluster", "host", cfg.Host, "port", cfg.Port)
	return &Store{session: session, logger: logger, ok: true}, nil
}

func tlsVersion(name string) (uint16, error) {
	switch strings.ToUpper(name) {
	case "TLS1":
		return tls.VersionTLS10, nil
	case "TLS1_1":
		return tls.VersionTLS11, nil
	case "TLS1_2", "":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported SSL version %q", name)
	}
}

func (s *Store) Put(key string, value []byte) error {
	err := s.session.Query(insertStmt, key, value).Exec()
	if err != nil {
		return errors.Wrapf(err, "inserting record with key [%s]", key)
	}
	return nil
}

func (s *Store) Get(key string) ([]byte, error) {
	var value []byte
	err := s.session.Query(selectStmt, key).Scan(&value)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, entities.ErrStoreEntityNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading record with key [%s]", key)
	}
	return value, nil
}

func (s *Store) Delete(key string) error {
	err := s.session.Query(deleteStmt, key).Exec()
	if err != nil {
		return errors.Wrapf(err, "deleting record with key [%s]", key)
	}
	return nil
}

// DeletePrefix removes the record stored under the prefix itself plus every
// status child (prefix + "-" + single state digit). CQL has no generic prefix
// scan, but the archive key schema makes all children point-addressable.
func (s *Store) DeletePrefix(prefix string) (int, error) {
	candidates := CandidateKeys(prefix)
	deleted := 0
	for _, key := range candidates {
		var value []byte
		err := s.session.Query(selectStmt, key).Scan(&value)
		if errors.Is(err, gocql.ErrNotFound) {
			continue
		}
		if err != nil {
			return deleted, errors.Wrapf(err, "checking record with key [%s]", key)
		}
		if err := s.Delete(key); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// CandidateKeys enumerates every key the archive schema can place under a
// body-key prefix: the body record and one child per transaction state.
func CandidateKeys(prefix string) []string {
	keys := make([]string, 0, 8)
	keys = append(keys, prefix)
	for digit := '0'; digit <= '6'; digit++ {
		keys = append(keys, prefix+"-"+string(digit))
	}
	return keys
}

func (s *Store) IsOK() bool {
	return s.ok && s.session != nil && !s.session.Closed()
}

func (s *Store) Close() error {
	s.session.Close()
	return nil
}
