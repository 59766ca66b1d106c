package store

import (
	"errors"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"cipherchat/internal/domain"
)

const (
	metadataBucket = "metadata"
	recordsBucket  = "records"
	paramsKey      = "kdf"
)

// BoltKV keeps sealed records in a single bbolt database. Every Put is its
// own committed transaction.
type BoltKV struct {
	db   *bolt.DB
	seal *sealer
}

// Compile-time assertion.
var _ domain.SecureStorage = (*BoltKV)(nil)

// lockTimeout bounds the wait for another process holding the database.
const lockTimeout = time.Second

// OpenBoltKV opens (or creates) the database file at path.
func OpenBoltKV(path, passphrase string) (*BoltKV, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, err
	}

	var raw []byte
	if err := db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(recordsBucket)); err != nil {
			return err
		}
		if b := meta.Get([]byte(paramsKey)); b != nil {
			raw = append([]byte(nil), b...)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	s, fresh, err := newSealer(passphrase, raw)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if fresh != nil {
		if err := db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket([]byte(metadataBucket)).Put([]byte(paramsKey), fresh)
		}); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &BoltKV{db: db, seal: s}, nil
}

func (s *BoltKV) Get(key string) ([]byte, bool, error) {
	var sealed []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(recordsBucket)).Get([]byte(key)); b != nil {
			// Values are only valid for the life of the transaction.
			sealed = append([]byte(nil), b...)
		}
		return nil
	}); err != nil {
		return nil, false, err
	}
	if sealed == nil {
		return nil, false, nil
	}
	v, err := s.seal.open(key, sealed)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *BoltKV) Put(key string, value []byte) error {
	if key == "" {
		return errors.New("empty key")
	}
	sealed, err := s.seal.seal(key, value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(recordsBucket)).Put([]byte(key), sealed)
	})
}

func (s *BoltKV) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(recordsBucket)).Delete([]byte(key))
	})
}

// Keys lists stored keys with the given prefix in lexical order.
func (s *BoltKV) Keys(prefix string) ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(recordsBucket)).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			out = append(out, string(k))
		}
		return nil
	})
	return out, err
}

// DeleteAll drops and recreates the records bucket.
func (s *BoltKV) DeleteAll() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(recordsBucket)) != nil {
			if err := tx.DeleteBucket([]byte(recordsBucket)); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucket([]byte(recordsBucket))
		return err
	})
}

func (s *BoltKV) Close() error { return s.db.Close() }
