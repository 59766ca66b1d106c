package interfaces

import domaintypes "cipherchat/internal/domain/types"

// IdentityService creates and retrieves the device identity.
type IdentityService interface {
	GetOrCreateIdentity() (domaintypes.Identity, error)
	Fingerprint() (domaintypes.Fingerprint, error)
}

// PrekeyService generates prekey batches and assembles the public bundle.
type PrekeyService interface {
	PublishPrekeys(count int) ([]domaintypes.PrekeyID, error)
	Bundle(user domaintypes.UserID) (domaintypes.PrekeyBundle, error)
	ConsumePrekey(id domaintypes.PrekeyID) (domaintypes.Prekey, error)
}

// SessionManager is the per-peer encryption contract used by the delivery
// coordinator.
type SessionManager interface {
	GetOrCreateIdentity() (domaintypes.Identity, error)
	EstablishSession(
		peer domaintypes.UserID,
		device domaintypes.DeviceID,
		bundle domaintypes.PrekeyBundle,
	) (domaintypes.Session, error)
	Session(id domaintypes.SessionID) (domaintypes.Session, bool, error)
	Sessions() ([]domaintypes.Session, error)
	Encrypt(id domaintypes.SessionID, env domaintypes.Envelope) (string, error)
	Decrypt(id domaintypes.SessionID, payload string) (domaintypes.Envelope, error)
	VerificationCode(peer domaintypes.UserID, device domaintypes.DeviceID) (domaintypes.VerificationCode, error)
}
