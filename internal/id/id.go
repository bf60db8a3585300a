// Package id generates random identifiers.
package id

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// Generate returns a random 6-character hex ID.
func Generate() string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Session returns a random 20-character URL-safe session ID, the shape
// Socket.IO servers use for sids.
func Session() string {
	b := make([]byte, 15)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
