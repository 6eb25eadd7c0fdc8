// Package checksum computes revision digests used as HTTP ETags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/starford/lattice/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Note digests the mutable fields of a note. Fields are NUL separated so
// that moving bytes between title and content changes the digest.
func Note(n models.Note) string {
	h := sha256.New()
	h.Write([]byte(n.Title))
	h.Write([]byte{0})
	h.Write([]byte(n.Content))
	h.Write([]byte{0})
	h.Write([]byte(n.SpaceID))
	return hex.EncodeToString(h.Sum(nil))
}
