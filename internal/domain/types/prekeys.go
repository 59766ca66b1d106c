package types

import "strings"

// Prekey is a locally stored single-use key pair.
type Prekey struct {
	ID         PrekeyID      `json:"id"`
	Priv       X25519Private `json:"priv"`
	Pub        X25519Public  `json:"pub"`
	Used       bool          `json:"used"`
	CreatedUTC int64         `json:"created_utc"`
}

// PrekeyBundle is the public key material a peer consumes to establish a
// session. Keys travel as base64 strings.
type PrekeyBundle struct {
	UserID      UserID   `json:"user_id,omitempty"`
	DeviceID    DeviceID `json:"device_id,omitempty"`
	IdentityKey string   `json:"identity_key"`
	SigningKey  string   `json:"signing_key,omitempty"`
	PreKeyID    PrekeyID `json:"pre_key_id,omitempty"`
	PreKey      string   `json:"pre_key"`
	Signature   string   `json:"signature,omitempty"`
}

// Empty reports whether the bundle lacks the identity key or the prekey.
func (b PrekeyBundle) Empty() bool {
	return strings.TrimSpace(b.IdentityKey) == "" || strings.TrimSpace(b.PreKey) == ""
}
