package finding

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// trailingPunct strips whitespace and trailing punctuation from a code
// fingerprint so cosmetic re-formatting of unchanged code does not perturb
// finding_id (spec.md §4.3).
var trailingPunct = regexp.MustCompile(`[\s;,\.]+$`)

// CanonicalPath normalizes a file path for hashing: forward slashes,
// cleaned, with no leading "./".
func CanonicalPath(path string) string {
	p := filepath.ToSlash(filepath.Clean(path))
	return strings.TrimPrefix(p, "./")
}

// NormalizeCodeFingerprint strips whitespace and trailing punctuation from
// a code snippet, per spec.md §4.3's "normalized_code_fingerprint".
func NormalizeCodeFingerprint(snippet string) string {
	fields := strings.Fields(snippet)
	joined := strings.Join(fields, " ")
	return trailingPunct.ReplaceAllString(joined, "")
}

// ComputeID derives finding_id = hash(tool_id ∥ rule_id ∥
// canonical(file_path) ∥ line_start ∥ normalized_code_fingerprint), per
// spec.md §4.3. It is deterministic and stable across re-runs on
// unchanged input (spec.md §8, "Finding id stability").
func ComputeID(toolID, ruleID, filePath string, lineStart int, codeSnippet string) string {
	parts := []string{
		toolID,
		ruleID,
		CanonicalPath(filePath),
		strconv.Itoa(lineStart),
		NormalizeCodeFingerprint(codeSnippet),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// AssignID sets f.FindingID from its own fields, using the first source
// tool entry (the tool that produced this finding before any dedup
// merge).
func (f *Finding) AssignID() {
	if len(f.SourceTool) == 0 {
		return
	}
	f.FindingID = ComputeID(
		f.SourceTool[0].ToolID,
		f.SourceTool[0].RuleID,
		f.Location.FilePath,
		f.Location.LineStart,
		f.Location.CodeSnippet,
	)
}
