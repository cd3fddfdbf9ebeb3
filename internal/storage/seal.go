package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	sealMagic      = "GCM3NCR0"
	saltLen        = 16
	nonceLen       = 12
	pbkdf2Rounds   = 100000
	sealedOverhead = len(sealMagic) + saltLen + nonceLen + 16
)

var ErrNotSealed = errors.New("data is not sealed")

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Rounds, 32, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts data with AES-256-GCM under a PBKDF2 key.
// Format: magic(8) + salt(16) + nonce(12) + ciphertext + tag(16).
func Seal(data []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltLen)
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, sealedOverhead+len(data))
	out = append(out, sealMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// IsSealed reports whether data starts with the seal magic.
func IsSealed(data []byte) bool { return bytes.HasPrefix(data, []byte(sealMagic)) }

// Open reverses Seal.
func Open(sealed []byte, passphrase string) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, ErrNotSealed
	}
	if len(sealed) < sealedOverhead {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(sealed))
	}
	salt := sealed[len(sealMagic) : len(sealMagic)+saltLen]
	nonce := sealed[len(sealMagic)+saltLen : len(sealMagic)+saltLen+nonceLen]
	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, sealed[len(sealMagic)+saltLen+nonceLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plain, nil
}
