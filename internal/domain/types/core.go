package types

import "strings"

// UserID identifies an account on the relay.
type UserID string

// String returns the string form of the user id.
func (u UserID) String() string { return string(u) }

// DeviceID identifies one device (one identity) of a user.
type DeviceID string

// String returns the string form of the device id.
func (d DeviceID) String() string { return string(d) }

// MessageID is either a server-assigned id or a local temporary id.
type MessageID string

// String returns the string form of the message id.
func (id MessageID) String() string { return string(id) }

// IsTemporary reports whether the id was generated locally before the
// relay acknowledged the message.
func (id MessageID) IsTemporary() bool { return strings.HasPrefix(string(id), TempIDPrefix) }

// TempIDPrefix marks locally generated message ids.
const TempIDPrefix = "temp-"

// SessionID names one ordered channel between two device endpoints.
type SessionID string

// String returns the string form of the session id.
func (id SessionID) String() string { return string(id) }

// SessionIDFor derives the session id for a peer device.
func SessionIDFor(peer UserID, device DeviceID) SessionID {
	return SessionID(string(peer) + ":" + string(device))
}

// PrekeyID uniquely identifies a single-use prekey.
type PrekeyID string

// String returns the string form of the prekey id.
func (id PrekeyID) String() string { return string(id) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
