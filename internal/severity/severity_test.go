package severity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKnownTokens(t *testing.T) {
	cases := map[string]Level{
		"critical":      Critical,
		"SEVERE":        Critical,
		"High":          High,
		"medium":        Medium,
		"WARNING":       Medium,
		"low":           Low,
		"info":          Info,
		"Informational": Info,
		"note":          Info,
	}
	for token, want := range cases {
		got := Normalize(token)
		assert.Equalf(t, want, got.Level, "Normalize(%q)", token)
		assert.Truef(t, got.Recognized, "Normalize(%q) should be recognized", token)
	}
}

func TestNormalizeUnknownTokenMapsToMediumAndIsUnrecognized(t *testing.T) {
	got := Normalize("weird")
	require.Equal(t, Medium, got.Level, "unknown severity token must normalize to MEDIUM")
	assert.False(t, got.Recognized, "unknown severity token must be reported as unrecognized")

	reason := UnmappedReason("weird")
	assert.Contains(t, reason, "severity unmapped")
}

func TestRankOrdersBySeverityDescending(t *testing.T) {
	levels := []Level{Info, Low, Medium, High, Critical}
	for i := 1; i < len(levels); i++ {
		assert.Greaterf(t, Rank(levels[i]), Rank(levels[i-1]), "Rank(%s) should exceed Rank(%s)", levels[i], levels[i-1])
	}
}
