package interfaces

import domaintypes "cipherchat/internal/domain/types"

// SecureStorage is scoped key-value persistence. Put returns only after the
// value is durable.
type SecureStorage interface {
	Get(key string) (value []byte, ok bool, err error)
	Put(key string, value []byte) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
	DeleteAll() error
	Close() error
}

// IdentityStore persists the device identity.
type IdentityStore interface {
	SaveIdentity(id domaintypes.Identity) error
	LoadIdentity() (domaintypes.Identity, bool, error)
}

// PrekeyStore manages single-use prekeys.
type PrekeyStore interface {
	SavePrekeys(prekeys []domaintypes.Prekey) error
	LoadPrekey(id domaintypes.PrekeyID) (domaintypes.Prekey, bool, error)
	ListPrekeys() ([]domaintypes.Prekey, error)
	MarkPrekeyUsed(id domaintypes.PrekeyID) error
}

// SessionStore persists per-peer sessions and verification marks.
type SessionStore interface {
	SaveSession(session domaintypes.Session) error
	LoadSession(id domaintypes.SessionID) (domaintypes.Session, bool, error)
	ListSessions() ([]domaintypes.Session, error)
	DeleteSession(id domaintypes.SessionID) error

	SaveVerification(code domaintypes.VerificationCode) error
	LoadVerification(peer domaintypes.UserID, device domaintypes.DeviceID) (domaintypes.VerificationCode, bool, error)
}

// KeyStore is everything the Cryptographic Session Manager persists.
type KeyStore interface {
	IdentityStore
	PrekeyStore
	SessionStore
	ClearAll() error
}
