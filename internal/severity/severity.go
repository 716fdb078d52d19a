// Package severity implements the canonical native-severity-token mapping
// of spec.md §4.3.
package severity

import "strings"

// Level is the unified severity level every finding is normalized to.
type Level string

const (
	Critical Level = "CRITICAL"
	High     Level = "HIGH"
	Medium   Level = "MEDIUM"
	Low      Level = "LOW"
	Info     Level = "INFO"
)

// Exploitability captures how easily a finding is believed exploitable.
type Exploitability string

const (
	ExploitEasy     Exploitability = "EASY"
	ExploitModerate Exploitability = "MODERATE"
	ExploitHard     Exploitability = "HARD"
	ExploitUnknown  Exploitability = "UNKNOWN"
)

// rank orders levels for descending sort (spec.md §4.6): higher is more
// severe.
var rank = map[Level]int{
	Critical: 5,
	High:     4,
	Medium:   3,
	Low:      2,
	Info:     1,
}

// Rank returns a level's sort weight, higher meaning more severe.
func Rank(l Level) int {
	return rank[l]
}

// tokenTable maps case-insensitive native tokens to unified levels
// (spec.md §4.3 table).
var tokenTable = map[string]Level{
	"critical": Critical,
	"severe":   Critical,
	"high":     High,
	"medium":   Medium,
	"warning":  Medium,
	"low":      Low,
	"info":           Info,
	"informational":  Info,
	"note":           Info,
}

// Normalized is the result of mapping a native severity token: the
// unified level plus whether the token was recognized.
type Normalized struct {
	Level      Level
	Recognized bool
}

// Normalize maps a native severity token (case-insensitive) to a unified
// level. Unknown tokens map to MEDIUM per spec.md §4.3, with Recognized
// set to false so the caller can attach the required
// "severity unmapped: <token>" confidence reason and emit a diagnostic.
func Normalize(token string) Normalized {
	key := strings.ToLower(strings.TrimSpace(token))
	if lvl, ok := tokenTable[key]; ok {
		return Normalized{Level: lvl, Recognized: true}
	}
	return Normalized{Level: Medium, Recognized: false}
}

// UnmappedReason formats the confidence.reason required by spec.md §4.3
// and the "Severity normalization totality" testable property in §8.
func UnmappedReason(token string) string {
	return "severity unmapped: " + token
}

// CVSSBand returns the inclusive [low, high] CVSS range documented for a
// unified level in spec.md §4.3.
func CVSSBand(l Level) (low, high float64) {
	switch l {
	case Critical:
		return 9.0, 10.0
	case High:
		return 7.0, 8.9
	case Medium:
		return 4.0, 6.9
	case Low:
		return 0.1, 3.9
	case Info:
		return 0.0, 0.0
	default:
		return 0, 0
	}
}
