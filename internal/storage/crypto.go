package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	gcmNonceSize = 12 // 96-bit IV
	gcmTagSize   = 16
	keySize      = 32 // AES-256
)

// ParseKey resolves the configured encryption key material. A 64-character
// hex string decodes to the raw key; a 32-byte raw string is used as-is.
// Any other length means "no key configured" and inline storage falls back
// to the unencrypted scheme.
func ParseKey(material string) []byte {
	switch len(material) {
	case keySize * 2:
		key, err := hex.DecodeString(material)
		if err != nil {
			return nil
		}
		return key
	case keySize:
		return []byte(material)
	}
	return nil
}

// encryptInline seals data with AES-256-GCM and encodes the result as
// scheme.iv.tag.ciphertext with base64url segments.
func encryptInline(key, data []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, data, nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	enc := base64.RawURLEncoding
	return strings.Join([]string{
		schemeInlineEncrypted,
		enc.EncodeToString(nonce),
		enc.EncodeToString(tag),
		enc.EncodeToString(ciphertext),
	}, "."), nil
}

// decryptInline reverses encryptInline. The caller has already stripped and
// dispatched on the scheme segment.
func decryptInline(key []byte, locator string) ([]byte, error) {
	parts := strings.Split(locator, ".")
	if len(parts) != 4 || parts[0] != schemeInlineEncrypted {
		return nil, ErrInvalidLocator
	}

	enc := base64.RawURLEncoding
	nonce, err := enc.DecodeString(parts[1])
	if err != nil || len(nonce) != gcmNonceSize {
		return nil, ErrInvalidLocator
	}
	tag, err := enc.DecodeString(parts[2])
	if err != nil || len(tag) != gcmTagSize {
		return nil, ErrInvalidLocator
	}
	ciphertext, err := enc.DecodeString(parts[3])
	if err != nil {
		return nil, ErrInvalidLocator
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	sealed := append(ciphertext, tag...)
	data, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		// Tampered or wrong key. Fail closed.
		return nil, ErrNotFound
	}
	return data, nil
}
