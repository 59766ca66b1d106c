package store

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"cipherchat/internal/domain"
)

const (
	paramsFile = "keystore.json"
	recordsDir = "records"
	recordExt  = ".rec"
)

// FileKV keeps one sealed file per key under a directory. Writes go through
// a synced temp file and rename, so a Put is durable once it returns.
type FileKV struct {
	dir  string
	mu   sync.Mutex
	seal *sealer
}

// Compile-time assertion.
var _ domain.SecureStorage = (*FileKV)(nil)

// OpenFileKV opens (creating if needed) a file-backed store rooted at dir.
func OpenFileKV(dir, passphrase string) (*FileKV, error) {
	if err := os.MkdirAll(filepath.Join(dir, recordsDir), 0o700); err != nil {
		return nil, err
	}
	paramsPath := filepath.Join(dir, paramsFile)
	raw, ok, err := readRecord(paramsPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		raw = nil
	}
	s, fresh, err := newSealer(passphrase, raw)
	if err != nil {
		return nil, err
	}
	if fresh != nil {
		if err := writeRecord(paramsPath, fresh); err != nil {
			return nil, err
		}
	}
	return &FileKV{dir: dir, seal: s}, nil
}

func (s *FileKV) path(key string) string {
	return filepath.Join(s.dir, recordsDir, base64.RawURLEncoding.EncodeToString([]byte(key))+recordExt)
}

func (s *FileKV) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok, err := readRecord(s.path(key))
	if err != nil || !ok {
		return nil, false, err
	}
	v, err := s.seal.open(key, b)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *FileKV) Put(key string, value []byte) error {
	if key == "" {
		return errors.New("empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.seal.seal(key, value)
	if err != nil {
		return err
	}
	return writeRecord(s.path(key), b)
}

func (s *FileKV) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return removeRecord(s.path(key))
}

// Keys lists stored keys with the given prefix in lexical order.
func (s *FileKV) Keys(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, recordsDir))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, recordExt))
		if err != nil {
			return nil, fmt.Errorf("corrupt record name %q: %w", name, err)
		}
		if k := string(raw); strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// DeleteAll removes every record. Missing state is not an error.
func (s *FileKV) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.dir, recordsDir)
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}

func (s *FileKV) Close() error { return nil }
