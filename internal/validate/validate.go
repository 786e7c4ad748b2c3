// Package validate holds the small cross-cutting helpers spec section 2
// assigns a 5% share to: email normalization, hex-id/fingerprint syntax,
// cryptographically random nonce generation, and the email-domain policy
// predicate used by publicKey.restrictUserOrigin.
package validate

import (
	"regexp"
	"strings"

	"github.com/jmcvetta/randutil"
)

var hexRE = regexp.MustCompile(`^[0-9a-f]+$`)

// NormalizeEmail lowercases and trims an email address the way every user-ID
// email in the directory is normalized before comparison or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsHex reports whether s is exactly n lowercase hex characters, as required
// for key IDs (16), fingerprints (40), and nonces (32).
func IsHex(s string, n int) bool {
	return len(s) == n && hexRE.MatchString(s)
}

// IsKeyID reports whether s is a well-formed 16-hex-char key id.
func IsKeyID(s string) bool { return IsHex(s, 16) }

// IsFingerprint reports whether s is a well-formed 40-hex-char fingerprint.
func IsFingerprint(s string) bool { return IsHex(s, 40) }

// KeyIDFromFingerprint derives the key id (invariant 1 of spec section 3):
// the last 16 lowercase hex characters of the fingerprint.
func KeyIDFromFingerprint(fingerprint string) string {
	fingerprint = strings.ToLower(fingerprint)
	if len(fingerprint) < 16 {
		return fingerprint
	}
	return fingerprint[len(fingerprint)-16:]
}

const hexAlphabet = "0123456789abcdef"

// NewNonce generates a fresh 32-char lowercase hex nonce (spec section 3,
// User-ID Record). randutil draws from crypto/rand under the hood.
func NewNonce() (string, error) {
	return randutil.String(32, hexAlphabet)
}

// DomainPolicy matches a user ID email against the configured organisation
// domain regex (publicKey.restrictionRegEx).
type DomainPolicy struct {
	re *regexp.Regexp
}

// NewDomainPolicy compiles the organisation-domain regex. An empty pattern
// never matches, which is the correct behaviour when restrictUserOrigin is
// disabled.
func NewDomainPolicy(pattern string) (*DomainPolicy, error) {
	if pattern == "" {
		return &DomainPolicy{}, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &DomainPolicy{re: re}, nil
}

// Matches reports whether email belongs to the configured organisation
// domain.
func (p *DomainPolicy) Matches(email string) bool {
	if p == nil || p.re == nil {
		return false
	}
	return p.re.MatchString(NormalizeEmail(email))
}
