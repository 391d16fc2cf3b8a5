// Package identity provides anonymous identity primitives: per-connection
// ids, generated display names, and opaque admin bearer tokens.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"

	"github.com/google/uuid"
)

// anonNames is the pool display names are drawn from. Names are generated,
// never user-chosen.
var anonNames = []string{"Stranger", "Anonymous", "Unknown", "Visitor", "Guest"}

// NewConnectionID returns a fresh opaque participant identifier, unique per
// connection.
func NewConnectionID() string {
	return uuid.NewString()
}

// DisplayName generates an anonymous display name like "Stranger_412".
func DisplayName() string {
	name := anonNames[mrand.IntN(len(anonNames))]
	return fmt.Sprintf("%s_%d", name, mrand.IntN(1000))
}

// NewAdminToken returns an opaque bearer token for an authenticated admin
// session.
func NewAdminToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate admin token: %w", err)
	}
	return "adm_" + hex.EncodeToString(buf), nil
}
