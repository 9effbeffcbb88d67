package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the NFKD form of s. Passphrases are normalized before
// key derivation so visually identical input derives the same key.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}

// NormalizeIdentifier canonicalizes a login identifier such as an email
// address: surrounding space trimmed and NFKC composed. Case is preserved;
// whether the local part is case-sensitive is up to the server.
func NormalizeIdentifier(s string) string {
	return norm.NFKC.String(strings.TrimSpace(s))
}
