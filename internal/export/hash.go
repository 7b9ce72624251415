package export

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/crypto/argon2"
)

// ErrUnsupportedHashType is returned for an unknown hash algorithm.
var ErrUnsupportedHashType = errors.New("unsupported hash type")

// HashType represents the different hashing algorithms available.
type HashType string

const (
	// HashTypeArgon2id uses the Argon2id algorithm for hashing.
	HashTypeArgon2id HashType = "argon2id"
	// HashTypeSHA256 uses iterated, salted SHA-256.
	HashTypeSHA256 HashType = "sha256"
)

// Hasher pseudonymizes user ids. The same id, salt and parameters always
// produce the same hash so records of one user stay linkable within an export.
type Hasher struct {
	Salt       string
	Type       HashType
	Iterations uint32
	// Memory is the Argon2id memory cost in MiB.
	Memory uint32
}

// Validate checks the hasher parameters.
func (h *Hasher) Validate() error {
	switch h.Type {
	case HashTypeSHA256, HashTypeArgon2id:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedHashType, h.Type)
	}

	if h.Salt == "" {
		return errors.New("salt is required")
	}
	if h.Iterations == 0 {
		return errors.New("iterations must be positive")
	}
	if h.Type == HashTypeArgon2id && h.Memory == 0 {
		return errors.New("argon2id memory must be positive")
	}

	return nil
}

// Hash returns the hex encoded hash of a user id.
func (h *Hasher) Hash(userID string) string {
	var sum []byte

	switch h.Type {
	case HashTypeArgon2id:
		sum = argon2.IDKey([]byte(userID), []byte(h.Salt), h.Iterations, h.Memory*1024, 1, 32)
	case HashTypeSHA256:
		sum = []byte(h.Salt)

		digest := sha256.New()
		for range h.Iterations {
			digest.Reset()
			digest.Write([]byte(userID))
			digest.Write(sum)
			sum = digest.Sum(nil)
		}
	}

	return hex.EncodeToString(sum)
}

// HashAll hashes each distinct id once using up to concurrency goroutines.
// Empty ids map to an empty hash.
func (h *Hasher) HashAll(ids []string, concurrency int) map[string]string {
	hashes := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return hashes
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(max(concurrency, 1))

	for _, id := range ids {
		if _, seen := hashes[id]; seen {
			continue
		}
		hashes[id] = ""

		if id == "" {
			continue
		}

		p.Go(func() {
			hash := h.Hash(id)

			mu.Lock()
			hashes[id] = hash
			mu.Unlock()
		})
	}

	p.Wait()

	return hashes
}
