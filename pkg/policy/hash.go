// Package policy enforces the request admission chain: API-key
// authentication, tenant isolation, tool and branch allow-lists, fixed-window
// rate limits, and token budgets. Policy failures stop a request before any
// Eye runs.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey derives the stored identifier of an API-key secret. Raw secrets
// are never persisted or logged; everything downstream works on this hash.
func HashKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
