// Package memzero wipes key material that is no longer needed.
package memzero

// Zero overwrites every buffer with zeros.
func Zero(bufs ...[]byte) {
	for _, b := range bufs {
		clear(b)
	}
}
