// Package sealbox encrypts secret values against a repository's Actions
// public key using anonymous NaCl sealed boxes, the format the secrets API
// requires for uploaded values.
package sealbox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

const publicKeySize = 32

// Seal encrypts plaintext against a base64-encoded 32-byte public key and
// returns the base64-encoded ciphertext. Each call produces a fresh
// ephemeral key pair, so sealing the same value twice yields different
// ciphertext.
func Seal(publicKeyBase64, plaintext string) (string, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil {
		return "", fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(keyBytes) != publicKeySize {
		return "", fmt.Errorf("public key is %d bytes, want %d", len(keyBytes), publicKeySize)
	}

	var key [publicKeySize]byte
	copy(key[:], keyBytes)

	sealed, err := box.SealAnonymous(nil, []byte(plaintext), &key, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to seal secret value: %w", err)
	}

	return base64.StdEncoding.EncodeToString(sealed), nil
}
