package export_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/robalyx/legalgate/internal/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher_Hash(t *testing.T) {
	t.Parallel()

	t.Run("sha256 single iteration", func(t *testing.T) {
		t.Parallel()

		h := &export.Hasher{Salt: "test_salt", Type: export.HashTypeSHA256, Iterations: 1}
		sum := sha256.Sum256([]byte("user-1test_salt"))

		assert.Equal(t, hex.EncodeToString(sum[:]), h.Hash("user-1"))
	})

	t.Run("sha256 chains iterations", func(t *testing.T) {
		t.Parallel()

		h := &export.Hasher{Salt: "test_salt", Type: export.HashTypeSHA256, Iterations: 2}
		first := sha256.Sum256([]byte("user-1test_salt"))
		second := sha256.Sum256(append([]byte("user-1"), first[:]...))

		assert.Equal(t, hex.EncodeToString(second[:]), h.Hash("user-1"))
	})

	t.Run("argon2id is deterministic", func(t *testing.T) {
		t.Parallel()

		h := &export.Hasher{Salt: "test_salt", Type: export.HashTypeArgon2id, Iterations: 1, Memory: 1}
		first := h.Hash("user-1")

		assert.Len(t, first, 64)
		assert.Equal(t, first, h.Hash("user-1"))
		assert.NotEqual(t, first, h.Hash("user-2"))
	})

	t.Run("salt changes the hash", func(t *testing.T) {
		t.Parallel()

		a := &export.Hasher{Salt: "a", Type: export.HashTypeSHA256, Iterations: 3}
		b := &export.Hasher{Salt: "b", Type: export.HashTypeSHA256, Iterations: 3}

		assert.NotEqual(t, a.Hash("user-1"), b.Hash("user-1"))
	})
}

func TestHasher_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		hasher  export.Hasher
		wantErr bool
	}{
		{name: "valid sha256", hasher: export.Hasher{Salt: "s", Type: export.HashTypeSHA256, Iterations: 1}},
		{name: "valid argon2id", hasher: export.Hasher{Salt: "s", Type: export.HashTypeArgon2id, Iterations: 1, Memory: 8}},
		{name: "unknown type", hasher: export.Hasher{Salt: "s", Type: "md5", Iterations: 1}, wantErr: true},
		{name: "missing salt", hasher: export.Hasher{Type: export.HashTypeSHA256, Iterations: 1}, wantErr: true},
		{name: "zero iterations", hasher: export.Hasher{Salt: "s", Type: export.HashTypeSHA256}, wantErr: true},
		{name: "argon2id without memory", hasher: export.Hasher{Salt: "s", Type: export.HashTypeArgon2id, Iterations: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.hasher.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
		})
	}
}

func TestHasher_HashAll(t *testing.T) {
	t.Parallel()

	h := &export.Hasher{Salt: "salt", Type: export.HashTypeSHA256, Iterations: 5}
	hashes := h.HashAll([]string{"user-1", "user-2", "user-1", ""}, 4)

	require.Len(t, hashes, 3)
	assert.Equal(t, h.Hash("user-1"), hashes["user-1"])
	assert.Equal(t, h.Hash("user-2"), hashes["user-2"])
	assert.Empty(t, hashes[""])
}
