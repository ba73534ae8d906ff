package secretchain

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecryptionFailed is returned by Decrypt on any failure. It never
// wraps the underlying AEAD error, which could otherwise be coaxed into
// leaking information about the ciphertext or key via its message.
var ErrDecryptionFailed = errors.New("secretchain: decryption failed")

// VaultCrypto encrypts secret values at rest with ChaCha20-Poly1305.
// Each call to Encrypt draws a fresh random nonce, so encrypting the same
// plaintext twice yields different ciphertexts. The encrypted format is
// nonce || ciphertext, matching the "nonce || ciphertext" convention used
// by the AES-GCM vault this component replaces in spirit.
type VaultCrypto struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewVaultCrypto builds a VaultCrypto from a raw 32-byte master key.
func NewVaultCrypto(key [32]byte) (*VaultCrypto, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("secretchain: init cipher: %w", err)
	}
	return &VaultCrypto{aead: aead}, nil
}

// Encrypt seals plaintext, prepending a random nonce to the result.
func (c *VaultCrypto) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secretchain: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce||ciphertext blob produced by Encrypt.
func (c *VaultCrypto) Decrypt(blob []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(blob) < nonceSize {
		return nil, ErrDecryptionFailed
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
