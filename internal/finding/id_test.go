package finding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIDStableAcrossReruns(t *testing.T) {
	a := ComputeID("semgrep", "python.sql-injection", "app/db.py", 42, "cursor.execute(query)")
	b := ComputeID("semgrep", "python.sql-injection", "app/db.py", 42, "cursor.execute(query)")
	require.Equal(t, a, b, "finding id not stable across identical inputs")
}

func TestComputeIDIgnoresCosmeticWhitespace(t *testing.T) {
	a := ComputeID("semgrep", "rule", "app/db.py", 42, "cursor.execute(query)  ;")
	b := ComputeID("semgrep", "rule", "app/db.py", 42, "cursor.execute(query)")
	assert.Equal(t, a, b, "finding id should be insensitive to trailing whitespace/punctuation")
}

func TestComputeIDDiffersByLocation(t *testing.T) {
	a := ComputeID("semgrep", "rule", "app/db.py", 42, "snippet")
	b := ComputeID("semgrep", "rule", "app/other.py", 42, "snippet")
	assert.NotEqual(t, a, b, "finding ids for distinct file paths must differ")
}

func TestCanonicalPathNormalizesSeparatorsAndDotSlash(t *testing.T) {
	assert.Equal(t, "app/db.py", CanonicalPath("./app/db.py"))
}
