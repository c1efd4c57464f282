// Package securelink mints document download URLs. The tokens here are
// deterministic digests, not capability grants: the link service that would
// verify them is a separate system, and this package only has to produce
// stable, unguessable-looking URLs to put in replies and audit records.
package securelink

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

const baseURL = "https://secure.yourcompany.com/docs/"

// Generate returns the secure link for one artifact granted to one
// recipient until expiresAt. The same inputs always yield the same link, so
// retried sends reference identical URLs.
func Generate(artifactID, recipient string, expiresAt time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", artifactID, recipient, expiresAt.Unix())))
	token := base64.RawURLEncoding.EncodeToString(sum[:])[:32]
	return baseURL + token
}

// ForArtifacts maps each artifact ID to its secure link.
func ForArtifacts(ids []string, recipient string, expiresAt time.Time) map[string]string {
	links := make(map[string]string, len(ids))
	for _, id := range ids {
		links[id] = Generate(id, recipient, expiresAt)
	}
	return links
}
