// Package repository defines relay storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"cipherchat/internal/domain"
)

// Default and maximum page sizes for history queries.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// MessageQuery selects the history of one conversation as seen by Self.
type MessageQuery struct {
	Self    domain.UserID
	Peer    domain.UserID
	GroupID string
	Since   time.Time
	Limit   int
}

// ClampLimit returns l bounded to (0, MaxLimit], defaulting to DefaultLimit.
func ClampLimit(l int) int {
	if l <= 0 {
		return DefaultLimit
	}
	if l > MaxLimit {
		return MaxLimit
	}
	return l
}

// MessageRepository persists relayed ciphertexts.
type MessageRepository interface {
	// CreateMessage inserts a message. ID and CreatedAt must be set.
	CreateMessage(ctx context.Context, m domain.Message) error
	// GetMessage loads a message with its receipt-derived status.
	GetMessage(ctx context.Context, id domain.MessageID) (domain.Message, error)
	// ListMessages returns the newest Limit messages after Since, oldest first.
	ListMessages(ctx context.Context, q MessageQuery) ([]domain.Message, error)
}

// ReceiptRepository stores delivery and read receipts.
type ReceiptRepository interface {
	// AddReceipt stores r. It reports false when the same receipt already exists.
	AddReceipt(ctx context.Context, r domain.Receipt) (bool, error)
	// ListReceipts returns the receipts of a message, oldest first.
	ListReceipts(ctx context.Context, id domain.MessageID) ([]domain.Receipt, error)
}

// KeyRepository is the public key directory.
type KeyRepository interface {
	// PublishBundle stores the identity part of b and adds its one-time prekey.
	// A changed identity key discards the prekeys of the previous identity.
	PublishBundle(ctx context.Context, user domain.UserID, b domain.PrekeyBundle) error
	// ClaimBundle returns a bundle for user carrying the oldest unused prekey and
	// marks it used. A prekey is never handed out twice; once all are used
	// it returns errs.ErrNotFound until the user publishes more.
	ClaimBundle(ctx context.Context, user domain.UserID) (domain.PrekeyBundle, error)
}

// GroupRepository stores groups and their members.
type GroupRepository interface {
	// CreateGroup inserts g with its members.
	CreateGroup(ctx context.Context, g domain.Group) error
	// GetGroup loads a group with its members.
	GetGroup(ctx context.Context, id string) (domain.Group, error)
}

// Status derives the delivery status of m from its receipts. Only receipts
// from users other than the sender count.
func Status(m domain.Message, receipts []domain.Receipt) domain.MessageStatus {
	st := domain.StatusSent
	for _, r := range receipts {
		if r.MessageID != m.ID || r.UserID == m.SenderID {
			continue
		}
		st, _ = st.Advance(r.Kind.Status())
	}
	return st
}
