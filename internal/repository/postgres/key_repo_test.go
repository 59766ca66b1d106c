package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
)

var bundle = domain.PrekeyBundle{
	DeviceID: "d1", IdentityKey: "idB", SigningKey: "sigB",
	PreKeyID: "pk1", PreKey: "pub1", Signature: "s1",
}

func TestKeyRepo_Publish_NewUser(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT identity_key FROM key_bundles WHERE user_id = \$1 FOR UPDATE`).
		WithArgs(domain.UserID("bob")).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO key_bundles`).
		WithArgs(domain.UserID("bob"), bundle.DeviceID, bundle.IdentityKey, bundle.SigningKey).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO one_time_prekeys`).
		WithArgs(domain.UserID("bob"), bundle.PreKeyID, bundle.PreKey, bundle.Signature).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, r.PublishBundle(context.Background(), "bob", bundle))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyRepo_Publish_IdentityChangeDropsPrekeys(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT identity_key FROM key_bundles`).
		WithArgs(domain.UserID("bob")).
		WillReturnRows(pgxmock.NewRows([]string{"identity_key"}).AddRow("oldID"))
	mock.ExpectExec(`DELETE FROM one_time_prekeys WHERE user_id = \$1`).
		WithArgs(domain.UserID("bob")).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`INSERT INTO key_bundles`).
		WithArgs(domain.UserID("bob"), bundle.DeviceID, bundle.IdentityKey, bundle.SigningKey).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO one_time_prekeys`).
		WithArgs(domain.UserID("bob"), bundle.PreKeyID, bundle.PreKey, bundle.Signature).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, r.PublishBundle(context.Background(), "bob", bundle))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyRepo_Claim_MarksOldestUnused(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT device_id, identity_key, signing_key FROM key_bundles`).
		WithArgs(domain.UserID("bob")).
		WillReturnRows(pgxmock.NewRows([]string{"device_id", "identity_key", "signing_key"}).
			AddRow(domain.DeviceID("d1"), "idB", "sigB"))
	mock.ExpectQuery(`WHERE user_id = \$1 AND NOT used`).
		WithArgs(domain.UserID("bob")).
		WillReturnRows(pgxmock.NewRows([]string{"prekey_id", "public_key", "signature"}).
			AddRow(domain.PrekeyID("pk1"), "pub1", "s1"))
	mock.ExpectExec(`UPDATE one_time_prekeys SET used = true`).
		WithArgs(domain.UserID("bob"), domain.PrekeyID("pk1")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	b, err := r.ClaimBundle(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, domain.UserID("bob"), b.UserID)
	require.Equal(t, domain.PrekeyID("pk1"), b.PreKeyID)
	require.Equal(t, "idB", b.IdentityKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyRepo_Claim_ExhaustedIsNotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM key_bundles`).
		WithArgs(domain.UserID("bob")).
		WillReturnRows(pgxmock.NewRows([]string{"device_id", "identity_key", "signing_key"}).
			AddRow(domain.DeviceID("d1"), "idB", "sigB"))
	mock.ExpectQuery(`AND NOT used`).
		WithArgs(domain.UserID("bob")).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := r.ClaimBundle(context.Background(), "bob")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyRepo_Claim_UnknownUser(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM key_bundles`).
		WithArgs(domain.UserID("nobody")).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := r.ClaimBundle(context.Background(), "nobody")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
