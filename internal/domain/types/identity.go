package types

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// Ed25519Private is an Ed25519 signing private key.
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }

// Identity holds the long-term keys of one device. The private halves never
// leave secure local storage.
type Identity struct {
	DeviceID   DeviceID       `json:"device_id"`
	XPub       X25519Public   `json:"xpub"`
	XPriv      X25519Private  `json:"xpriv"`
	EdPub      Ed25519Public  `json:"edpub"`
	EdPriv     Ed25519Private `json:"edpriv"`
	CreatedUTC int64          `json:"created_utc"`
}
