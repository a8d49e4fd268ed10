package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrDecryptionFailed is returned when a ciphertext cannot be opened,
// either because the key is wrong or the data is corrupt.
var ErrDecryptionFailed = errors.New("decryption failed")

// Encryptor seals and opens small payloads with a symmetric key.
// Used for the session file at rest so a bearer token never touches
// disk in the clear.
type Encryptor struct {
	key [32]byte
}

// NewEncryptor creates an encryptor from a key that must be exactly 32 bytes
func NewEncryptor(key []byte) (Encryptor, error) {
	if len(key) != 32 {
		return Encryptor{}, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	var e Encryptor
	copy(e.key[:], key)
	return e, nil
}

// Encrypt seals plaintext with a random nonce. The nonce is prepended to
// the returned ciphertext.
func (e Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &e.key), nil
}

// Decrypt opens a ciphertext produced by Encrypt
func (e Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24 {
		return nil, ErrDecryptionFailed
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])
	plaintext, ok := secretbox.Open(nil, ciphertext[24:], &nonce, &e.key)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
