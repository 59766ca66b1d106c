// Package prekey manages single-use prekeys and the public bundle peers use
// to establish sessions.
package prekey
