package report

import (
	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/model"
)

// StaleMessage describes the staleness found in a listing, or returns ""
// when every file is fresh. Used as a warning when staleness is not raised.
func StaleMessage(list *model.ListResult) string {
	e := &coverage.ProjectStaleError{
		CoverageTimestamp: list.Timestamp,
		Newer:             list.NewerFiles,
		Missing:           list.DeletedFiles,
		MissingTracked:    list.MissingTrackedFiles,
		LengthMismatch:    list.LengthMismatchFiles,
		Unreadable:        list.UnreadableFiles,
		Errored:           list.ErroredFiles,
		ResultsetPath:     list.ResultsetPath,
	}
	if len(e.Newer)+len(e.Missing)+len(e.MissingTracked)+len(e.LengthMismatch)+len(e.Unreadable)+len(e.Errored) == 0 {
		return ""
	}
	return e.UserMessage()
}
