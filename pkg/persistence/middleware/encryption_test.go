package middleware_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = b
	}
	return key
}

func TestEncryptionMiddleware_RoundTrip(t *testing.T) {
	inner := memory.NewStore()
	store := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: testKey(0x01),
	})(inner)

	ctx := context.Background()
	plaintext := []byte(`{"v":1,"version":3,"root":"doc"}`)

	require.NoError(t, store.Save(ctx, "doc-1", plaintext))

	loaded, err := store.Load(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, plaintext, loaded)
}

func TestEncryptionMiddleware_StoresCiphertext(t *testing.T) {
	inner := memory.NewStore()
	store := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: testKey(0x02),
	})(inner)

	ctx := context.Background()
	plaintext := []byte("sensitive document contents")

	require.NoError(t, store.Save(ctx, "doc-1", plaintext))

	raw, err := inner.Load(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, plaintext), "Inner store should never see plaintext")
	assert.Greater(t, len(raw), len(plaintext), "Ciphertext carries nonce and auth tag")
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	oldKey := testKey(0x0a)
	newKey := testKey(0x0b)

	// Write with the old key.
	oldStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: oldKey,
	})(inner)
	require.NoError(t, oldStore.Save(ctx, "doc-1", []byte("written before rotation")))

	t.Run("Fallback Key Decrypts", func(t *testing.T) {
		rotated := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    newKey,
			FallbackKeys: [][]byte{oldKey},
		})(inner)

		loaded, err := rotated.Load(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("written before rotation"), loaded)
	})

	t.Run("Missing Fallback Fails", func(t *testing.T) {
		rotated := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey: newKey,
		})(inner)

		_, err := rotated.Load(ctx, "doc-1")
		assert.Error(t, err)
	})
}

func TestNewEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey: []byte("too short"),
		})
	})
}
