package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
	"cipherchat/internal/repository"
)

// MessageRepo implements repository.MessageRepository and
// repository.ReceiptRepository.
type MessageRepo struct{ db *DB }

var (
	_ repository.MessageRepository = (*MessageRepo)(nil)
	_ repository.ReceiptRepository = (*MessageRepo)(nil)
)

// NewMessageRepo constructs a message repository.
func NewMessageRepo(db *DB) *MessageRepo { return &MessageRepo{db: db} }

const messageColumns = `m.id, m.sender_id, m.sender_device_id, m.recipient_id, m.group_id,
 m.encrypted_content, m.message_type, m.created_at,
 CASE
  WHEN EXISTS (SELECT 1 FROM receipts r WHERE r.message_id = m.id AND r.user_id <> m.sender_id AND r.kind = 'read') THEN 'read'
  WHEN EXISTS (SELECT 1 FROM receipts r WHERE r.message_id = m.id AND r.user_id <> m.sender_id) THEN 'delivered'
  ELSE 'sent'
 END`

// CreateMessage inserts a message row.
func (r *MessageRepo) CreateMessage(ctx context.Context, m domain.Message) error {
	const q = `
INSERT INTO messages (id, sender_id, sender_device_id, recipient_id, group_id, encrypted_content, message_type, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Pool.Exec(ctx, q,
		m.ID, m.SenderID, m.SenderDeviceID, m.RecipientID, m.GroupID, m.Content, m.Type, m.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetMessage loads one message with its receipt-derived status.
func (r *MessageRepo) GetMessage(ctx context.Context, id domain.MessageID) (domain.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages m WHERE m.id = $1`
	m, err := scanMessage(r.db.Pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, errs.ErrNotFound
	}
	return m, err
}

// ListMessages returns the newest q.Limit messages of a conversation after
// q.Since, oldest first.
func (r *MessageRepo) ListMessages(ctx context.Context, q repository.MessageQuery) ([]domain.Message, error) {
	var (
		sql  string
		args []any
	)
	limit := repository.ClampLimit(q.Limit)
	if q.GroupID != "" {
		sql = `SELECT * FROM (SELECT ` + messageColumns + ` FROM messages m
 WHERE m.group_id = $1 AND m.created_at > $2
 ORDER BY m.created_at DESC LIMIT $3) sub ORDER BY sub.created_at ASC`
		args = []any{q.GroupID, q.Since, limit}
	} else {
		sql = `SELECT * FROM (SELECT ` + messageColumns + ` FROM messages m
 WHERE m.group_id = '' AND ((m.sender_id = $1 AND m.recipient_id = $2) OR (m.sender_id = $2 AND m.recipient_id = $1)) AND m.created_at > $3
 ORDER BY m.created_at DESC LIMIT $4) sub ORDER BY sub.created_at ASC`
		args = []any{q.Self, q.Peer, q.Since, limit}
	}

	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.SenderID, &m.SenderDeviceID, &m.RecipientID, &m.GroupID,
		&m.Content, &m.Type, &m.CreatedAt, &m.Status)
	return m, err
}

// AddReceipt inserts a receipt unless the same one exists.
func (r *MessageRepo) AddReceipt(ctx context.Context, rc domain.Receipt) (bool, error) {
	const q = `
INSERT INTO receipts (message_id, user_id, kind, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (message_id, user_id, kind) DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, q, rc.MessageID, rc.UserID, rc.Kind, rc.Timestamp)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListReceipts returns the receipts of a message, oldest first.
func (r *MessageRepo) ListReceipts(ctx context.Context, id domain.MessageID) ([]domain.Receipt, error) {
	const q = `
SELECT message_id, user_id, kind, created_at
FROM receipts WHERE message_id = $1
ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Receipt
	for rows.Next() {
		var rc domain.Receipt
		if err := rows.Scan(&rc.MessageID, &rc.UserID, &rc.Kind, &rc.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}
