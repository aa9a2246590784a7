package auth

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"
)

var (
	// ErrUnknownKey is returned when no configured key matches.
	ErrUnknownKey = errors.New("unknown api key")
	// ErrKeyDisabled is returned when a matching key has been disabled.
	ErrKeyDisabled = errors.New("api key disabled")
)

// APIKeyInfo is one configured admin API key with its metadata.
type APIKeyInfo struct {
	Key       string
	UserID    string
	Enabled   bool
	CreatedAt time.Time
}

// APIKeyValidator holds the set of keys allowed to call the Admin API.
// Lookups compare in constant time so response latency does not reveal
// how much of a guessed key matched.
type APIKeyValidator struct {
	mu   sync.RWMutex
	keys []*APIKeyInfo
}

// NewAPIKeyValidator builds a validator over the given keys.
func NewAPIKeyValidator(keys []*APIKeyInfo) *APIKeyValidator {
	v := &APIKeyValidator{keys: make([]*APIKeyInfo, len(keys))}
	copy(v.keys, keys)
	return v
}

// Validate returns the key's info when key is configured and enabled.
func (v *APIKeyValidator) Validate(key string) (*APIKeyInfo, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	for _, info := range v.keys {
		if subtle.ConstantTimeCompare([]byte(info.Key), []byte(key)) == 1 {
			if !info.Enabled {
				return nil, ErrKeyDisabled
			}
			return info, nil
		}
	}
	return nil, ErrUnknownKey
}

// Add registers another key on a live validator.
func (v *APIKeyValidator) Add(info *APIKeyInfo) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, existing := range v.keys {
		if existing.Key == info.Key {
			v.keys[i] = info
			return
		}
	}
	v.keys = append(v.keys, info)
}

// Remove drops a key from a live validator.
func (v *APIKeyValidator) Remove(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, existing := range v.keys {
		if existing.Key == key {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			return
		}
	}
}
