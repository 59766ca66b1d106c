package store

import (
	"sort"
	"strings"
	"sync"

	"cipherchat/internal/domain"
)

// MemoryKV is an unsealed in-process SecureStorage. Nothing survives the
// process; it backs ephemeral clients and tests.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// Compile-time assertion.
var _ domain.SecureStorage = (*MemoryKV)(nil)

func NewMemoryKV() *MemoryKV { return &MemoryKV{data: make(map[string][]byte)} }

func (s *MemoryKV) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryKV) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryKV) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryKV) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryKV) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	return nil
}

func (s *MemoryKV) Close() error { return nil }
