// Package wechat implements the webhook transport: the signature
// challenge, the XML message envelope, and the HTTP handler that
// orchestrates deduplication and reply dispatch.
package wechat

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign computes the platform signature: the shared token, timestamp and
// nonce sorted lexicographically, concatenated, and SHA-1 hashed.
func Sign(token, timestamp, nonce string) string {
	parts := []string{token, timestamp, nonce}
	sort.Strings(parts)

	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// ValidSignature reports whether the supplied signature matches the
// expected one for the token/timestamp/nonce triple.
func ValidSignature(token, timestamp, nonce, signature string) bool {
	expected := Sign(token, timestamp, nonce)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
