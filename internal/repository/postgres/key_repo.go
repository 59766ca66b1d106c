package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
	"cipherchat/internal/repository"
)

// KeyRepo implements repository.KeyRepository.
type KeyRepo struct{ db *DB }

var _ repository.KeyRepository = (*KeyRepo)(nil)

// NewKeyRepo constructs a key directory repository.
func NewKeyRepo(db *DB) *KeyRepo { return &KeyRepo{db: db} }

// PublishBundle upserts the identity row of user and adds the bundle's prekey.
func (r *KeyRepo) PublishBundle(ctx context.Context, user domain.UserID, b domain.PrekeyBundle) error {
	const (
		sel = `SELECT identity_key FROM key_bundles WHERE user_id = $1 FOR UPDATE`
		del = `DELETE FROM one_time_prekeys WHERE user_id = $1`
		ups = `
INSERT INTO key_bundles (user_id, device_id, identity_key, signing_key, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (user_id) DO UPDATE
SET device_id = EXCLUDED.device_id, identity_key = EXCLUDED.identity_key,
    signing_key = EXCLUDED.signing_key, updated_at = now()`
		ins = `
INSERT INTO one_time_prekeys (user_id, prekey_id, public_key, signature)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, prekey_id) DO NOTHING`
	)

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, sel, user).Scan(&current)
		switch {
		case err == nil:
			if current != b.IdentityKey {
				if _, err := tx.Exec(ctx, del, user); err != nil {
					return err
				}
			}
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}
		if _, err := tx.Exec(ctx, ups, user, b.DeviceID, b.IdentityKey, b.SigningKey); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, ins, user, b.PreKeyID, b.PreKey, b.Signature)
		return err
	})
}

// ClaimBundle returns a bundle with the oldest unused prekey of user and
// marks it used. errs.ErrNotFound means the user is unknown or has no unused
// prekey left.
func (r *KeyRepo) ClaimBundle(ctx context.Context, user domain.UserID) (out domain.PrekeyBundle, err error) {
	const (
		selBundle = `SELECT device_id, identity_key, signing_key FROM key_bundles WHERE user_id = $1`
		selUnused = `
SELECT prekey_id, public_key, signature FROM one_time_prekeys
WHERE user_id = $1 AND NOT used
ORDER BY seq ASC LIMIT 1 FOR UPDATE SKIP LOCKED`
		mark = `UPDATE one_time_prekeys SET used = true WHERE user_id = $1 AND prekey_id = $2`
	)

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, selBundle, user).Scan(&out.DeviceID, &out.IdentityKey, &out.SigningKey)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, selUnused, user).Scan(&out.PreKeyID, &out.PreKey, &out.Signature)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: no unused prekeys for %s", errs.ErrNotFound, user)
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, mark, user, out.PreKeyID)
		return err
	})
	if err != nil {
		return domain.PrekeyBundle{}, err
	}
	out.UserID = user
	return out, nil
}
