package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashEmail creates a consistent hash for logging without exposing PII
func HashEmail(email string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(hash[:])[:12]
}

// HashName creates a consistent hash for full-name logging
func HashName(name string) string {
	hash := sha256.Sum256([]byte(name))
	return hex.EncodeToString(hash[:])[:8]
}
