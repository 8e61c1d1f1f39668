// Package cipher derives the per-track Blowfish key Provider-D's media
// pipeline uses to scramble segments of a track's byte stream.
package cipher

import (
	"crypto/md5"
	"encoding/hex"
)

// secret is the fixed 16-byte literal XORed into the derived key. It is a
// constant of the system, not a configuration value.
const secret = "g4el58wc0zvf9na1"

// KeySize is the length in bytes of a derived track key.
const KeySize = 16

// Key derives the 16-byte symmetric key for trackRef: MD5(trackRef) is
// hex-encoded into a 32-character lowercase string H, and K[i] = H[i] XOR
// H[i+16] XOR secret[i] for i in [0,16). Pure, total, deterministic.
func Key(trackRef string) [KeySize]byte {
	sum := md5.Sum([]byte(trackRef))
	h := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(h, sum[:])

	var k [KeySize]byte
	for i := 0; i < KeySize; i++ {
		k[i] = h[i] ^ h[i+16] ^ secret[i]
	}
	return k
}
