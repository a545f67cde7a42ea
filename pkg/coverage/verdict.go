package coverage

import "fmt"

// Verdict classifies how trustworthy the coverage of one file is.
type Verdict string

const (
	VerdictOK             Verdict = "ok"
	VerdictNewer          Verdict = "newer"
	VerdictMissing        Verdict = "missing"
	VerdictLengthMismatch Verdict = "length_mismatch"
	VerdictUnreadable     Verdict = "unreadable"
	VerdictError          Verdict = "error"
)

// precedence for aggregation: length_mismatch > missing > newer > unreadable > error > ok
var verdictRank = map[Verdict]int{
	VerdictOK:             0,
	VerdictError:          1,
	VerdictUnreadable:     2,
	VerdictNewer:          3,
	VerdictMissing:        4,
	VerdictLengthMismatch: 5,
}

// Verdicts lists every verdict from highest to lowest precedence.
var Verdicts = []Verdict{
	VerdictLengthMismatch,
	VerdictMissing,
	VerdictNewer,
	VerdictUnreadable,
	VerdictError,
	VerdictOK,
}

// Rank returns the aggregation precedence; higher wins.
func (v Verdict) Rank() int {
	return verdictRank[v]
}

// Stale reports whether v is anything other than ok.
func (v Verdict) Stale() bool {
	return v != VerdictOK
}

func (v Verdict) String() string {
	return string(v)
}

// Short returns the one-letter marker used in table output, empty for ok.
func (v Verdict) Short() string {
	switch v {
	case VerdictOK:
		return ""
	case VerdictNewer:
		return "T"
	case VerdictMissing:
		return "M"
	case VerdictLengthMismatch:
		return "L"
	case VerdictUnreadable:
		return "U"
	default:
		return "E"
	}
}

// Worst returns whichever of a and b has the higher precedence.
func Worst(a, b Verdict) Verdict {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParseVerdict validates a verdict string.
func ParseVerdict(s string) (Verdict, error) {
	v := Verdict(s)
	if _, ok := verdictRank[v]; !ok {
		return "", fmt.Errorf("unknown stale status %q (valid: ok, newer, missing, length_mismatch, unreadable, error)", s)
	}
	return v, nil
}
