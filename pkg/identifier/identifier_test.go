package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintShape(t *testing.T) {
	id, err := Mint(NamespacePerson, "SP", 2025, 42, "123.456.789-00")
	require.NoError(t, err)
	assert.Regexp(t, `^BR-SP-2025-000000042-[0-9a-f]{2}$`, string(id))

	agent, err := Mint(NamespaceAgent, "RJ", 2026, 999999999, "agt_8842")
	require.NoError(t, err)
	assert.Regexp(t, `^AGENT-RJ-2026-999999999-[0-9a-f]{2}$`, string(agent))
}

func TestMintRejectsBadInput(t *testing.T) {
	cases := []struct {
		name     string
		ns       Namespace
		region   string
		year     int
		sequence int
		secret   string
	}{
		{"unknown namespace", "ORG", "SP", 2025, 1, "s"},
		{"lowercase region", NamespacePerson, "sp", 2025, 1, "s"},
		{"long region", NamespacePerson, "SPX", 2025, 1, "s"},
		{"year too small", NamespacePerson, "SP", 999, 1, "s"},
		{"year too large", NamespacePerson, "SP", 10000, 1, "s"},
		{"negative sequence", NamespacePerson, "SP", 2025, -1, "s"},
		{"sequence overflow", NamespacePerson, "SP", 2025, 1000000000, "s"},
		{"empty secret", NamespacePerson, "SP", 2025, 1, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Mint(tc.ns, tc.region, tc.year, tc.sequence, tc.secret)
			assert.Error(t, err)
		})
	}
}

func TestValidateRoundTrip(t *testing.T) {
	id, err := Mint(NamespacePerson, "SP", 2025, 7, "secret-a")
	require.NoError(t, err)

	assert.True(t, Validate(id, "secret-a"))
	assert.False(t, Validate(id, "secret-b"), "foreign secret must not validate")
}

func TestValidateFailsClosedOnMalformedInput(t *testing.T) {
	cases := []struct {
		name string
		id   Identifier
	}{
		{"empty", ""},
		{"plain text", "not-an-identifier"},
		{"missing checksum", "BR-SP-2025-000000007"},
		{"non-hex checksum", "BR-SP-2025-000000007-zz"},
		{"uppercase checksum", "BR-SP-2025-000000007-AB"},
		{"short sequence", "BR-SP-2025-42-ab"},
		{"unknown namespace", "ORG-SP-2025-000000007-ab"},
		{"trailing dash", "BR-SP-2025-000000007-"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, Validate(tc.id, "secret-a"))
		})
	}
}

func TestValidateRejectsTamperedBase(t *testing.T) {
	id, err := Mint(NamespacePerson, "SP", 2025, 7, "secret-a")
	require.NoError(t, err)

	tampered := Identifier("BR-SP-2025-000000008" + string(id)[len(id)-3:])
	assert.False(t, Validate(tampered, "secret-a"))
}

func TestExtractBase(t *testing.T) {
	id, err := Mint(NamespaceAgent, "SP", 2024, 123, "agt_1")
	require.NoError(t, err)

	base := ExtractBase(id)
	assert.Equal(t, "AGENT-SP-2024-000000123", base)

	// Idempotent on already-stripped input.
	assert.Equal(t, base, ExtractBase(Identifier(base)))
	// Unknown shapes pass through unchanged.
	assert.Equal(t, "whatever", ExtractBase("whatever"))
}

func TestChecksumDependsOnSecret(t *testing.T) {
	// Two different secrets over the same base should usually differ; with a
	// one-byte checksum collisions happen, so check a spread of secrets
	// produces more than one distinct checksum.
	seen := map[string]bool{}
	for _, secret := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		id, err := Mint(NamespacePerson, "SP", 2025, 1, secret)
		require.NoError(t, err)
		seen[string(id)[len(id)-2:]] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestLongSecretIsFolded(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = byte('a' + i%26)
	}
	id, err := Mint(NamespacePerson, "SP", 2025, 9, string(long))
	require.NoError(t, err)
	assert.True(t, Validate(id, string(long)))
}
