// Package identity manages creation and loading of the local device identity.
//
// It generates X25519 and Ed25519 key pairs once per device, assigns the
// device id, and persists them via the domain.IdentityStore.
package identity
