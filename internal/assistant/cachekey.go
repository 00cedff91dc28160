// Package assistant answers investigator questions about one evidence file:
// it retrieves matching artifacts, assembles a bounded context, asks the
// answering model and keeps a per-user conversation for the file.
package assistant

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Cache namespaces. Search results and answers share the key shape but never collide.
const (
	NamespaceSearch = "search"
	NamespaceAnswer = "llm"
)

// CacheKey returns "<namespace>:<fileID>:<sha256 hex of query>". The raw query
// never appears in the key.
func CacheKey(namespace string, fileID uuid.UUID, query string) string {
	sum := sha256.Sum256([]byte(query))
	return namespace + ":" + fileID.String() + ":" + hex.EncodeToString(sum[:])
}

// SessionKey returns the fast-store key of a chat session.
func SessionKey(sessionID uuid.UUID) string {
	return "chat:session:" + sessionID.String()
}
