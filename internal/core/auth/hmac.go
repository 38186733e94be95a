package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	keyPrefix     = "tp"
	keyVersion    = "v1"
	secretIDLen   = 32
	randomDataLen = 64
)

// ParseAPIKey extracts secret_id and random_data from an API key.
// Format: tp-v1-<secret_id>-<random_data>, lower-case hex, 103 chars total.
func ParseAPIKey(key string) (secretID, randomData string, err error) {
	parts := strings.Split(key, "-")
	if len(parts) != 4 || parts[0] != keyPrefix || parts[1] != keyVersion {
		return "", "", ErrInvalidKeyFormat
	}

	secretID, randomData = parts[2], parts[3]
	if len(secretID) != secretIDLen || len(randomData) != randomDataLen {
		return "", "", ErrInvalidKeyFormat
	}
	if !isLowerHex(secretID) || !isLowerHex(randomData) {
		return "", "", ErrInvalidKeyFormat
	}
	return secretID, randomData, nil
}

func isLowerHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// ComputeHMAC computes the HMAC-SHA256 of apiKey under secret.
func ComputeHMAC(secret []byte, apiKey string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(apiKey))
	return h.Sum(nil)
}

// HashAPIKey returns the hex-encoded HMAC stored in api_keys.key_hash.
func HashAPIKey(secret []byte, apiKey string) string {
	return hex.EncodeToString(ComputeHMAC(secret, apiKey))
}

// VerifyHMAC compares two hashes in constant time.
func VerifyHMAC(expectedHash, computedHash []byte) bool {
	return hmac.Equal(expectedHash, computedHash)
}

// FormatAPIKey constructs an API key from its components.
func FormatAPIKey(secretID, randomData string) string {
	return fmt.Sprintf("%s-%s-%s-%s", keyPrefix, keyVersion, secretID, randomData)
}

// GenerateAPIKey issues a new key bound to secretID and returns the
// plaintext key with the hash to persist. The plaintext is shown once.
func GenerateAPIKey(secretID string, secret []byte) (key, keyHash string, err error) {
	if len(secretID) != secretIDLen || !isLowerHex(secretID) {
		return "", "", fmt.Errorf("secret_id must be %d lower-case hex chars", secretIDLen)
	}
	random := make([]byte, randomDataLen/2)
	if _, err := rand.Read(random); err != nil {
		return "", "", fmt.Errorf("failed to generate key material: %w", err)
	}
	key = FormatAPIKey(secretID, hex.EncodeToString(random))
	return key, HashAPIKey(secret, key), nil
}
