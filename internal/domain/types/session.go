package types

import "time"

// SessionState is the lifecycle state of a Session.
type SessionState string

const (
	SessionInitialized SessionState = "initialized"
	SessionActive      SessionState = "active"
	SessionExpired     SessionState = "expired"
)

// Session is the encryption context with one peer device.
type Session struct {
	ID              SessionID    `json:"id"`
	PeerID          UserID       `json:"peer_id"`
	PeerDeviceID    DeviceID     `json:"peer_device_id"`
	State           SessionState `json:"state"`
	PeerIdentityKey string       `json:"peer_identity_key"`
	PeerPreKeyID    PrekeyID     `json:"peer_pre_key_id,omitempty"`
	Key             []byte       `json:"key,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	LastUsedAt      time.Time    `json:"last_used_at"`
}

// VerificationCode is the safety number shown to users for out-of-band
// comparison. Verified only changes through explicit user action.
type VerificationCode struct {
	PeerID       UserID      `json:"peer_id"`
	PeerDeviceID DeviceID    `json:"peer_device_id"`
	SafetyNumber string      `json:"safety_number"`
	Fingerprint  Fingerprint `json:"fingerprint"`
	Verified     bool        `json:"verified"`
	VerifiedAt   *time.Time  `json:"verified_at,omitempty"`
}
