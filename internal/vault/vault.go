package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	keyLength   = 32
	nonceLength = 12
	tagLength   = 16
)

// ErrDecryptionFailed is returned for any blob that cannot be authenticated:
// tampering, truncation, or a wrong key.
var ErrDecryptionFailed = errors.New("token decryption failed")

// Vault encrypts and decrypts OAuth tokens at rest using AES-256-GCM.
// Each encryption draws a fresh random nonce so identical plaintexts produce
// different blobs. The blob layout is base64(nonce || tag || ciphertext).
// A Vault is stateless and safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// New creates a Vault from a base64-encoded 32-byte key.
func New(base64Key string) (*Vault, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("token encryption key is not configured")
	}

	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("token encryption key is not valid base64: %w", err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("token encryption key must be %d bytes when decoded, got %d", keyLength, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt encrypts a plaintext token and returns the base64 blob.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends the auth tag after the ciphertext; the stored layout is
	// nonce, then tag, then ciphertext.
	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	blob := make([]byte, 0, nonceLength+tagLength+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt decrypts a base64 blob produced by Encrypt. Any authentication
// failure surfaces as ErrDecryptionFailed, never as corrupted plaintext.
func (v *Vault) Decrypt(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", ErrDecryptionFailed)
	}
	if len(blob) < nonceLength+tagLength {
		return "", fmt.Errorf("%w: blob too short", ErrDecryptionFailed)
	}

	nonce := blob[:nonceLength]
	tag := blob[nonceLength : nonceLength+tagLength]
	ciphertext := blob[nonceLength+tagLength:]

	sealed := make([]byte, 0, len(ciphertext)+tagLength)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}
