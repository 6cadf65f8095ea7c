// SPDX-License-Identifier: MIT

package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// Principal is the authenticated identity of an API caller, used as the
// actor in audit events.
type Principal struct {
	// ID is a stable identifier: the configured caller name, or a hash
	// of the token when none is set.
	ID string

	// User is the human-readable caller name if configured.
	User string
}

// NewPrincipal derives a Principal from a token and optional caller name.
// The token itself never appears in the ID.
func NewPrincipal(token, user string) Principal {
	id := user
	if id == "" {
		hash := sha256.Sum256([]byte(token))
		id = "t_" + hex.EncodeToString(hash[:])[:16]
	}
	return Principal{ID: id, User: user}
}
