package llm

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
)

// EncryptedKeyStore is an ApiKeyResolver backed by an in-memory map of
// AES-256-GCM-sealed API keys, keyed by (userID, provider). The encryption
// key is derived from a single master passphrase (MASTER_ENCRYPTION_KEY)
// via SHA-256, the same password-to-key derivation the rest of the
// ecosystem uses for at-rest secrets; only ciphertext is ever held once
// Set returns.
type EncryptedKeyStore struct {
	mu     sync.RWMutex
	gcm    cipher.AEAD
	sealed map[string][]byte // "userID|provider" -> nonce||ciphertext
}

// NewEncryptedKeyStore derives a 32-byte AES-256 key from masterKey and
// returns an empty store. masterKey must be non-empty; an empty master key
// would silently derive a fixed, guessable key.
func NewEncryptedKeyStore(masterKey string) (*EncryptedKeyStore, error) {
	if masterKey == "" {
		return nil, errors.New("llm: master encryption key must not be empty")
	}
	key := sha256.Sum256([]byte(masterKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("llm: build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("llm: build gcm: %w", err)
	}
	return &EncryptedKeyStore{gcm: gcm, sealed: make(map[string][]byte)}, nil
}

func credentialKey(userID, provider string) string {
	return userID + "|" + provider
}

// Set seals apiKey for (userID, provider), replacing any existing value.
func (s *EncryptedKeyStore) Set(userID, provider, apiKey string) error {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("llm: generate nonce: %w", err)
	}
	sealed := s.gcm.Seal(nonce, nonce, []byte(apiKey), nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed[credentialKey(userID, provider)] = sealed
	return nil
}

// Resolve implements ApiKeyResolver: decrypt and return the key for
// (userID, provider), or "" if none was ever Set.
func (s *EncryptedKeyStore) Resolve(_ context.Context, userID, provider string) (string, error) {
	s.mu.RLock()
	sealed, ok := s.sealed[credentialKey(userID, provider)]
	s.mu.RUnlock()
	if !ok {
		return "", nil
	}

	nonceSize := s.gcm.NonceSize()
	if len(sealed) < nonceSize {
		return "", errors.New("llm: stored credential is corrupt")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("llm: decrypt credential: %w", err)
	}
	return string(plaintext), nil
}
