package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
	"cipherchat/internal/repository"
)

// GroupRepo implements repository.GroupRepository.
type GroupRepo struct{ db *DB }

var _ repository.GroupRepository = (*GroupRepo)(nil)

// NewGroupRepo constructs a group repository.
func NewGroupRepo(db *DB) *GroupRepo { return &GroupRepo{db: db} }

// CreateGroup inserts the group and its members in one transaction.
func (r *GroupRepo) CreateGroup(ctx context.Context, g domain.Group) error {
	const (
		insGroup  = `INSERT INTO groups (id, name, created_by, created_at) VALUES ($1, $2, $3, $4)`
		insMember = `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	)
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insGroup, g.ID, g.Name, g.CreatedBy, g.CreatedAt); err != nil {
			return err
		}
		for _, m := range g.Members {
			if _, err := tx.Exec(ctx, insMember, g.ID, m); err != nil {
				return err
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetGroup loads a group and its members.
func (r *GroupRepo) GetGroup(ctx context.Context, id string) (domain.Group, error) {
	const (
		selGroup   = `SELECT id, name, created_by, created_at FROM groups WHERE id = $1`
		selMembers = `SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY user_id`
	)
	var g domain.Group
	err := r.db.Pool.QueryRow(ctx, selGroup, id).Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Group{}, errs.ErrNotFound
	}
	if err != nil {
		return domain.Group{}, err
	}

	rows, err := r.db.Pool.Query(ctx, selMembers, id)
	if err != nil {
		return domain.Group{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var u domain.UserID
		if err := rows.Scan(&u); err != nil {
			return domain.Group{}, err
		}
		g.Members = append(g.Members, u)
	}
	return g, rows.Err()
}
