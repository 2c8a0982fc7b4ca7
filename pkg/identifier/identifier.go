// Package identifier mints and validates the checksum-bearing identifiers
// that laws, policies, and contracts reference.
//
// An identifier has the shape
//
//	<namespace>-<region>-<year>-<9-digit sequence>-<2-hex checksum>
//
// The checksum is a keyed digest of the base string (everything before the
// final segment) under a secret unique to the subject, so the same base
// minted for two different secrets usually carries different checksums. The
// base portion is what equality and lookup use; the checksum exists only to
// reject tampering and typos.
package identifier

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Namespace selects the identifier family.
type Namespace string

const (
	// NamespacePerson prefixes identifiers issued to people.
	NamespacePerson Namespace = "BR"
	// NamespaceAgent prefixes identifiers issued to agents.
	NamespaceAgent Namespace = "AGENT"
)

// DefaultRegion is used by callers that do not carry a regional registry.
const DefaultRegion = "SP"

// Identifier is an issued, immutable identifier string.
type Identifier string

// String implements fmt.Stringer.
func (id Identifier) String() string { return string(id) }

var (
	regionPattern   = regexp.MustCompile(`^[A-Z]{2}$`)
	checksumPattern = regexp.MustCompile(`^[0-9a-f]{2}$`)
	basePattern     = regexp.MustCompile(`^(BR|AGENT)-[A-Z]{2}-\d{4}-\d{9}$`)
)

// Mint issues a new identifier for the given subject secret. It is a pure
// function: the same inputs always produce the same identifier.
func Mint(ns Namespace, region string, year, sequence int, secret string) (Identifier, error) {
	if ns != NamespacePerson && ns != NamespaceAgent {
		return "", fmt.Errorf("identifier: unknown namespace %q", ns)
	}
	if !regionPattern.MatchString(region) {
		return "", fmt.Errorf("identifier: region must be two uppercase letters, got %q", region)
	}
	if year < 1000 || year > 9999 {
		return "", fmt.Errorf("identifier: year %d out of range", year)
	}
	if sequence < 0 || sequence > 999999999 {
		return "", fmt.Errorf("identifier: sequence %d out of range", sequence)
	}
	if secret == "" {
		return "", fmt.Errorf("identifier: empty secret")
	}

	base := fmt.Sprintf("%s-%s-%04d-%09d", ns, region, year, sequence)
	return Identifier(base + "-" + checksum(base, secret)), nil
}

// Validate re-derives the checksum from the declared secret and compares.
// Malformed input (wrong segment count, non-hex checksum, bad base shape)
// returns false; it never panics and never errors. Fails closed.
func Validate(id Identifier, secret string) bool {
	if secret == "" {
		return false
	}
	s := string(id)
	i := strings.LastIndex(s, "-")
	if i <= 0 || i == len(s)-1 {
		return false
	}
	base, sum := s[:i], s[i+1:]
	if !checksumPattern.MatchString(sum) {
		return false
	}
	if !basePattern.MatchString(base) {
		return false
	}
	want := checksum(base, secret)
	return subtle.ConstantTimeCompare([]byte(sum), []byte(want)) == 1
}

// ExtractBase strips the trailing checksum segment. Input that already lacks
// the checksum segment is returned unchanged, so the function is idempotent.
func ExtractBase(id Identifier) string {
	s := string(id)
	i := strings.LastIndex(s, "-")
	if i <= 0 {
		return s
	}
	base, sum := s[:i], s[i+1:]
	if !checksumPattern.MatchString(sum) || !basePattern.MatchString(base) {
		return s
	}
	return base
}

// checksum computes the two-hex-character keyed digest of base under secret.
// BLAKE2b in keyed mode, truncated to one byte. Secrets longer than the
// BLAKE2b key limit are folded through an unkeyed digest first.
func checksum(base, secret string) string {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		folded := blake2b.Sum256(key)
		key = folded[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		// Key length is bounded above; New256 only fails on oversized keys.
		panic(err)
	}
	_, _ = h.Write([]byte(base))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:1])
}
