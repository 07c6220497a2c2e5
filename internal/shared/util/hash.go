package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashNamespace returns a filesystem-safe identifier for an owner ID such as a company.
func HashNamespace(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
