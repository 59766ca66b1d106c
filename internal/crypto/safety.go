package crypto

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	safetyIterations = 5200
	safetyVersion    = 0
	safetyChunks     = 6 // per half; 5 digits each
)

// SafetyNumber derives a 60-digit code from two labelled inputs. The local
// half comes first, so the same pair of inputs always yields the same code.
func SafetyNumber(local, remote []byte) string {
	a := safetyHalf(local)
	b := safetyHalf(remote)
	groups := make([]string, 0, 2*safetyChunks)
	groups = append(groups, a...)
	groups = append(groups, b...)
	return strings.Join(groups, " ")
}

// safetyHalf iterates BLAKE2b-512 and renders the first 30 bytes as six
// 5-digit groups.
func safetyHalf(input []byte) []string {
	var version [2]byte
	binary.BigEndian.PutUint16(version[:], safetyVersion)

	digest := blake2b.Sum512(append(version[:], input...))
	for i := 1; i < safetyIterations; i++ {
		buf := make([]byte, 0, len(digest)+len(input))
		buf = append(buf, digest[:]...)
		buf = append(buf, input...)
		digest = blake2b.Sum512(buf)
	}

	out := make([]string, safetyChunks)
	for i := 0; i < safetyChunks; i++ {
		chunk := digest[i*5 : i*5+5]
		v := uint64(chunk[0])<<32 | uint64(chunk[1])<<24 | uint64(chunk[2])<<16 |
			uint64(chunk[3])<<8 | uint64(chunk[4])
		out[i] = fmt.Sprintf("%05d", v%100000)
	}
	return out
}
