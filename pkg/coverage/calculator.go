package coverage

import "math"

// Summary is covered/total over executable lines.
type Summary struct {
	Covered    int     `json:"covered" yaml:"covered"`
	Total      int     `json:"total" yaml:"total"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// LineDetail describes one executable line.
type LineDetail struct {
	Line    int  `json:"line" yaml:"line"`
	Hits    int  `json:"hits" yaml:"hits"`
	Covered bool `json:"covered" yaml:"covered"`
}

// Summarize counts executable and covered lines. A file without executable
// lines is reported as 100% covered.
func Summarize(lines Lines) Summary {
	var s Summary
	for _, hits := range lines {
		if hits < 0 {
			continue
		}
		s.Total++
		if hits > 0 {
			s.Covered++
		}
	}
	s.Percentage = Percentage(s.Covered, s.Total)
	return s
}

// Uncovered returns the 1-based numbers of executable lines with zero hits.
func Uncovered(lines Lines) []int {
	out := []int{}
	for i, hits := range lines {
		if hits == 0 {
			out = append(out, i+1)
		}
	}
	return out
}

// Detailed returns one row per executable line.
func Detailed(lines Lines) []LineDetail {
	rows := []LineDetail{}
	for i, hits := range lines {
		if hits < 0 {
			continue
		}
		rows = append(rows, LineDetail{Line: i + 1, Hits: hits, Covered: hits > 0})
	}
	return rows
}

// Percentage rounds covered/total to two decimals; 100 when total is zero.
func Percentage(covered, total int) float64 {
	if total <= 0 {
		return 100.0
	}
	return math.Round(float64(covered)*100.0/float64(total)*100) / 100
}
