package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken()
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	// Each call generates a unique token
	token2, err := GenerateSecureToken()
	assert.NoError(t, err)
	assert.NotEqual(t, token, token2)

	// base64 encoding of 32 bytes should be at least 40 chars
	assert.GreaterOrEqual(t, len(token), 40)
}

func TestEncryptor(t *testing.T) {
	key := []byte("test-encryption-key-32-bytes-ok!")

	t.Run("rejects short keys", func(t *testing.T) {
		_, err := NewEncryptor([]byte("short"))
		assert.Error(t, err)
	})

	t.Run("round trip", func(t *testing.T) {
		enc, err := NewEncryptor(key)
		require.NoError(t, err)

		ciphertext, err := enc.Encrypt([]byte(`{"token":"abc"}`))
		require.NoError(t, err)
		assert.NotContains(t, string(ciphertext), "abc")

		plaintext, err := enc.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, `{"token":"abc"}`, string(plaintext))
	})

	t.Run("wrong key fails", func(t *testing.T) {
		enc, _ := NewEncryptor(key)
		other, _ := NewEncryptor([]byte("another-encryption-key-32-bytes!"))

		ciphertext, err := enc.Encrypt([]byte("secret"))
		require.NoError(t, err)

		_, err = other.Decrypt(ciphertext)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("truncated ciphertext fails", func(t *testing.T) {
		enc, _ := NewEncryptor(key)
		_, err := enc.Decrypt([]byte("too short"))
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})
}

func TestTokenSigner(t *testing.T) {
	signer := NewTokenSigner([]byte("signing-key"), time.Minute)

	type state struct {
		Provider string `json:"provider"`
		Action   string `json:"action"`
	}

	t.Run("sign and verify", func(t *testing.T) {
		token, err := signer.Sign(state{Provider: "google", Action: "login"})
		require.NoError(t, err)

		var got state
		require.NoError(t, signer.Verify(token, &got))
		assert.Equal(t, "google", got.Provider)
		assert.Equal(t, "login", got.Action)
	})

	t.Run("tampered token rejected", func(t *testing.T) {
		token, err := signer.Sign(state{Provider: "google"})
		require.NoError(t, err)

		var got state
		err = signer.Verify("x"+token, &got)
		assert.Error(t, err)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		token, err := signer.Sign(state{Provider: "line"})
		require.NoError(t, err)

		other := NewTokenSigner([]byte("different-key"), time.Minute)
		var got state
		assert.Error(t, other.Verify(token, &got))
	})

	t.Run("expired token rejected", func(t *testing.T) {
		expired := NewTokenSigner([]byte("signing-key"), -time.Minute)
		token, err := expired.Sign(state{Provider: "google"})
		require.NoError(t, err)

		var got state
		assert.ErrorContains(t, signer.Verify(token, &got), "expired")
	})
}
