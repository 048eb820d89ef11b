package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader carries the operator key on admin routes.
const AdminKeyHeader = "X-Admin-Key"

const defaultCost = 12

// KeyHasher hashes and checks operator keys with bcrypt. Only the hash is
// ever configured, so a leaked config does not leak the key.
type KeyHasher struct {
	cost int
}

// NewKeyHasher creates a KeyHasher with bcrypt cost 12.
func NewKeyHasher() *KeyHasher {
	return &KeyHasher{cost: defaultCost}
}

// NewKeyHasherWithCost is NewKeyHasher with a chosen cost. Tests use
// bcrypt.MinCost.
func NewKeyHasherWithCost(cost int) *KeyHasher {
	return &KeyHasher{cost: cost}
}

// Hash hashes key. Keys over 72 bytes are rejected because bcrypt would
// silently truncate them.
func (k *KeyHasher) Hash(key string) (string, error) {
	if key == "" {
		return "", errors.New("auth: key must not be empty")
	}
	if len(key) > 72 {
		return "", fmt.Errorf("auth: key must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(key), k.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing key: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil if key matches hash.
func (k *KeyHasher) Verify(hash, key string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid key")
		}
		return fmt.Errorf("auth: comparing key hash: %w", err)
	}
	return nil
}

// RequireAdminKey guards operator routes. Requests must send a key matching
// keyHash in AdminKeyHeader. With an empty keyHash every request is refused.
func RequireAdminKey(hasher *KeyHasher, keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(AdminKeyHeader)
			if keyHash == "" || key == "" || hasher.Verify(keyHash, key) != nil {
				writeForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SameState compares an OAuth state value against the one stored in the
// browser without leaking timing.
func SameState(a, b string) bool {
	return a != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func writeForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"forbidden","message":"admin key required"}`))
}
