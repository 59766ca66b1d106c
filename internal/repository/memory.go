package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
)

// Memory implements every repository in process memory. It backs tests and
// `relay serve` without a database.
type Memory struct {
	mu       sync.RWMutex
	messages []domain.Message
	byID     map[domain.MessageID]int
	receipts map[domain.MessageID][]domain.Receipt
	bundles  map[domain.UserID]*keyEntry
	groups   map[string]domain.Group
	seq      int64
}

type keyEntry struct {
	bundle  domain.PrekeyBundle
	prekeys []prekeyEntry
}

type prekeyEntry struct {
	id   domain.PrekeyID
	pub  string
	sig  string
	used bool
	seq  int64
}

var (
	_ MessageRepository = (*Memory)(nil)
	_ ReceiptRepository = (*Memory)(nil)
	_ KeyRepository     = (*Memory)(nil)
	_ GroupRepository   = (*Memory)(nil)
)

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		byID:     make(map[domain.MessageID]int),
		receipts: make(map[domain.MessageID][]domain.Receipt),
		bundles:  make(map[domain.UserID]*keyEntry),
		groups:   make(map[string]domain.Group),
	}
}

// CreateMessage implements MessageRepository.
func (m *Memory) CreateMessage(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[msg.ID]; ok {
		return errs.ErrAlreadyExists
	}
	msg.Status = ""
	m.byID[msg.ID] = len(m.messages)
	m.messages = append(m.messages, msg)
	return nil
}

// GetMessage implements MessageRepository.
func (m *Memory) GetMessage(_ context.Context, id domain.MessageID) (domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return domain.Message{}, errs.ErrNotFound
	}
	return m.withStatus(m.messages[i]), nil
}

// ListMessages implements MessageRepository.
func (m *Memory) ListMessages(_ context.Context, q MessageQuery) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv := domain.Conversation{UserID: q.Peer, GroupID: q.GroupID}
	var out []domain.Message
	for _, msg := range m.messages {
		if !conv.Contains(msg, q.Self) || !msg.CreatedAt.After(q.Since) {
			continue
		}
		out = append(out, m.withStatus(msg))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit := ClampLimit(q.Limit); len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *Memory) withStatus(msg domain.Message) domain.Message {
	msg.Status = Status(msg, m.receipts[msg.ID])
	return msg
}

// AddReceipt implements ReceiptRepository.
func (m *Memory) AddReceipt(_ context.Context, r domain.Receipt) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.receipts[r.MessageID] {
		if have.UserID == r.UserID && have.Kind == r.Kind {
			return false, nil
		}
	}
	m.receipts[r.MessageID] = append(m.receipts[r.MessageID], r)
	return true, nil
}

// ListReceipts implements ReceiptRepository.
func (m *Memory) ListReceipts(_ context.Context, id domain.MessageID) ([]domain.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.receipts[id]), nil
}

// PublishBundle implements KeyRepository.
func (m *Memory) PublishBundle(_ context.Context, user domain.UserID, b domain.PrekeyBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.bundles[user]
	if e == nil || e.bundle.IdentityKey != b.IdentityKey {
		e = &keyEntry{}
		m.bundles[user] = e
	}
	e.bundle = domain.PrekeyBundle{
		UserID:      user,
		DeviceID:    b.DeviceID,
		IdentityKey: b.IdentityKey,
		SigningKey:  b.SigningKey,
	}
	for _, pk := range e.prekeys {
		if pk.id == b.PreKeyID {
			return nil
		}
	}
	m.seq++
	e.prekeys = append(e.prekeys, prekeyEntry{id: b.PreKeyID, pub: b.PreKey, sig: b.Signature, seq: m.seq})
	return nil
}

// ClaimBundle implements KeyRepository.
func (m *Memory) ClaimBundle(_ context.Context, user domain.UserID) (domain.PrekeyBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.bundles[user]
	if e == nil {
		return domain.PrekeyBundle{}, errs.ErrNotFound
	}
	pick := -1
	for i := range e.prekeys {
		if !e.prekeys[i].used {
			pick = i
			break
		}
	}
	if pick < 0 {
		return domain.PrekeyBundle{}, fmt.Errorf("%w: no unused prekeys for %s", errs.ErrNotFound, user)
	}
	pk := &e.prekeys[pick]
	pk.used = true

	out := e.bundle
	out.PreKeyID = pk.id
	out.PreKey = pk.pub
	out.Signature = pk.sig
	return out, nil
}

// CreateGroup implements GroupRepository.
func (m *Memory) CreateGroup(_ context.Context, g domain.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[g.ID]; ok {
		return errs.ErrAlreadyExists
	}
	g.Members = slices.Clone(g.Members)
	m.groups[g.ID] = g
	return nil
}

// GetGroup implements GroupRepository.
func (m *Memory) GetGroup(_ context.Context, id string) (domain.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return domain.Group{}, errs.ErrNotFound
	}
	g.Members = slices.Clone(g.Members)
	return g, nil
}
