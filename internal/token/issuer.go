// Package token issues opaque pairing tokens.
//
// A pairing token identifies one pairing attempt at the gateway and, once the
// pairing is confirmed, becomes the gateway-side identity of the channel. The
// "chn" prefix namespaces pairing tokens from the other token kinds in the
// platform (API keys, session tokens).
package token

import (
	"crypto/rand"
	"strings"
)

const (
	// Prefix namespaces pairing tokens from other token types.
	Prefix = "chn"
	// RandomLength is the number of random characters after the prefix.
	RandomLength = 18
	// Alphabet is the full upper/lower/digit set.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Issue generates a new pairing token.
// Collision resistance comes from the 62^18 space; the duplicate check
// against existing connections is the only uniqueness guarantee required.
func Issue() string {
	// Rejection sampling: 256 is not a multiple of 62, so a plain modulo
	// would skew toward the front of the alphabet.
	const limit = 256 - 256%len(Alphabet)

	out := make([]byte, 0, RandomLength)
	buf := make([]byte, RandomLength)
	for len(out) < RandomLength {
		rand.Read(buf)
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == RandomLength {
				break
			}
		}
	}
	return Prefix + string(out)
}

// Valid reports whether tok has the shape of an issued pairing token.
func Valid(tok string) bool {
	if !strings.HasPrefix(tok, Prefix) {
		return false
	}
	body := tok[len(Prefix):]
	if len(body) != RandomLength {
		return false
	}
	for i := 0; i < len(body); i++ {
		if !strings.ContainsRune(Alphabet, rune(body[i])) {
			return false
		}
	}
	return true
}
