package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Keyer derives deterministic query-cache keys.
//
// Contract:
// - Determinism: same inputs must produce same key, regardless of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key generates a cache key from a query class and its parameters.
	Key(class string, params any) (string, error)
}

// DefaultKeyer generates SHA-256 based cache keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key generates a deterministic cache key.
// Format: query:<class>:<hash>
// where hash is the first 16 hex characters of SHA-256(JSON(params)).
// encoding/json emits map keys in sorted order, which makes the
// serialization canonical for the map and slice shapes queries use.
func (k *DefaultKeyer) Key(class string, params any) (string, error) {
	if class == "" {
		return "", ErrInvalidKey
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("cache: failed to encode params: %w", err)
	}

	sum := sha256.Sum256(raw)
	key := fmt.Sprintf("query:%s:%s", class, hex.EncodeToString(sum[:8]))
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

var _ Keyer = (*DefaultKeyer)(nil)
