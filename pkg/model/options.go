package model

import (
	"fmt"
	"strings"
)

// SortOrder orders list rows by percentage.
type SortOrder string

const (
	SortAscending  SortOrder = "ascending"
	SortDescending SortOrder = "descending"
)

// DefaultSortOrder puts the best covered files first.
const DefaultSortOrder = SortDescending

// ParseSortOrder accepts ascending/descending and their first letters.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(s) {
	case "a", "asc", "ascending":
		return SortAscending, nil
	case "d", "desc", "descending", "":
		return SortDescending, nil
	}
	return "", fmt.Errorf("invalid sort order: %s (valid: ascending, descending)", s)
}

type queryOptions struct {
	raiseOnStale bool
	trackedGlobs []string
	sortOrder    SortOrder
}

// QueryOption overrides a model default for one call.
type QueryOption func(*queryOptions)

// WithRaiseOnStale turns staleness verdicts into errors.
func WithRaiseOnStale(raise bool) QueryOption {
	return func(o *queryOptions) { o.raiseOnStale = raise }
}

// WithTrackedGlobs limits listings to files matching the globs.
func WithTrackedGlobs(globs ...string) QueryOption {
	return func(o *queryOptions) { o.trackedGlobs = globs }
}

// WithSortOrder sets the row order of List.
func WithSortOrder(order SortOrder) QueryOption {
	return func(o *queryOptions) { o.sortOrder = order }
}

func (m *Model) query(opts []QueryOption) queryOptions {
	q := queryOptions{
		raiseOnStale: m.raiseOnStale,
		trackedGlobs: m.trackedGlobs,
		sortOrder:    DefaultSortOrder,
	}
	for _, opt := range opts {
		opt(&q)
	}
	return q
}
