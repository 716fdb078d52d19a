// Package cwe extracts CWE identifiers from tool rule metadata when an
// adapter has not supplied one explicitly (spec.md §4.3).
package cwe

import (
	"regexp"
	"strconv"
)

// pattern matches CWE-123, CWE_123, CWE 123, cwe-123, etc.; first match wins.
var pattern = regexp.MustCompile(`(?i)CWE[-_ ]?([0-9]+)`)

// ExtractFirst returns the first CWE id found in text, or (0, false) if
// none is present.
func ExtractFirst(text string) (int, bool) {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}
