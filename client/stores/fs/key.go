package fs

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// KeyFileName holds the continuation signing key next to the state file
const KeyFileName = "continuation.key"

const keySize = 32

// ContinuationKey returns the key used to sign OAuth continuation tokens,
// creating it on first use. Every process sharing the state directory gets
// the same key, so a flow started by one can be finished by another.
func (s *FSStateStore) ContinuationKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(filepath.Dir(s.path), KeyFileName)
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) < keySize {
			return nil, fmt.Errorf("continuation key %s is too short", path)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read continuation key: %w", err)
	}

	key = make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate continuation key: %w", err)
	}
	if err := writeAtomicFile(path, key, 0600); err != nil {
		return nil, err
	}
	return key, nil
}
