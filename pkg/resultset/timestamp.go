package resultset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jupierce/cov-loupe/pkg/coverage"
)

// timestampStrategy extracts a suite timestamp. found is false when the
// strategy's source is absent, in which case the next strategy is consulted.
type timestampStrategy func(suite map[string]json.RawMessage, logger coverage.Logger) (epoch int64, found bool)

// timestampStrategies are tried in order; the first one that finds a value
// decides the suite timestamp.
var timestampStrategies = []timestampStrategy{
	fieldTimestamp("timestamp"),
	fieldTimestamp("created_at"),
}

var numericTimestamp = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RubyDate,
	time.UnixDate,
}

// suiteTimestamp returns the suite's epoch seconds, never negative. Missing or
// unusable values yield 0 and a log message.
func suiteTimestamp(suite map[string]json.RawMessage, logger coverage.Logger) int64 {
	for _, strategy := range timestampStrategies {
		if epoch, found := strategy(suite, logger); found {
			return epoch
		}
	}
	logMissingTimestamp(logger, "")
	return 0
}

func fieldTimestamp(field string) timestampStrategy {
	return func(suite map[string]json.RawMessage, logger coverage.Logger) (int64, bool) {
		raw, ok := suite[field]
		raw = bytes.TrimSpace(raw)
		if !ok || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return 0, false
		}
		epoch, err := parseTimestamp(raw)
		if err != nil {
			logger.SafeLog(fmt.Sprintf("Coverage resultset timestamp could not be parsed: %s (%v)", raw, err))
			return 0, true
		}
		if epoch <= 0 {
			logMissingTimestamp(logger, string(raw))
			return 0, true
		}
		return epoch, true
	}
}

func parseTimestamp(raw json.RawMessage) (int64, error) {
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return parseTimestampString(strings.TrimSpace(s))
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return 0, err
		}
		return truncate(f), nil
	default:
		return 0, fmt.Errorf("unsupported timestamp type")
	}
}

func parseTimestampString(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if numericTimestamp.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return truncate(f), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("no known time format matches %q", s)
}

func truncate(f float64) int64 {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}

func logMissingTimestamp(logger coverage.Logger, raw string) {
	msg := "Coverage timestamp missing, defaulting to 0. Time-based staleness checks will be disabled."
	if raw != "" {
		msg += fmt.Sprintf(" (value: %s)", raw)
	}
	logger.SafeLog(msg)
}
