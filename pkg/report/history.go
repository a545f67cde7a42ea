package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jupierce/cov-loupe/pkg/history"
)

// HistoryTable renders recorded snapshots, newest first.
func HistoryTable(w io.Writer, snaps []history.Snapshot) error {
	if len(snaps) == 0 {
		_, err := fmt.Fprintln(w, "No snapshots recorded")
		return err
	}
	t := newTable(Border(w), map[int]bool{2: true, 3: true, 4: true, 5: true}).
		Headers("Recorded", "Fingerprint", "%", "Covered", "Total", "Stale files")
	for _, s := range snaps {
		t.Row(s.RecordedAt.Local().Format(time.DateTime), ShortFingerprint(s.Fingerprint),
			fmt.Sprintf("%.2f", s.Percentage), fmt.Sprint(s.Covered), fmt.Sprint(s.Total), fmt.Sprint(s.FilesStale))
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// TrendLines renders one file's coverage across snapshots, one per line.
func TrendLines(w io.Writer, file string, points []history.FilePoint) error {
	if len(points) == 0 {
		_, err := fmt.Fprintf(w, "No history for %s\n", file)
		return err
	}
	for _, p := range points {
		if _, err := fmt.Fprintf(w, "%s  %s  %6.2f%%  %d/%d%s\n",
			p.RecordedAt.Local().Format(time.DateTime), ShortFingerprint(p.Fingerprint),
			p.Percentage, p.Covered, p.Total, staleSuffix(p.Stale)); err != nil {
			return err
		}
	}
	return nil
}

// ShortFingerprint abbreviates a resultset digest for display.
func ShortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
