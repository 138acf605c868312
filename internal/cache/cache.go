package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key generates a namespaced cache key from arbitrary text. Embedding
// lookups hash the input text so long passages stay addressable.
func Key(namespace, text string) string {
	hash := sha256.Sum256([]byte(text))
	return "bracket:v1:" + namespace + ":" + hex.EncodeToString(hash[:])
}
