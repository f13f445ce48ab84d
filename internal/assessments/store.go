// Package assessments persists completed risk assessments for audit and
// case review. Recording is best-effort from the scoring path; reads back
// the history through cursor-paginated listing.
package assessments

import (
	"context"
	"errors"
	"time"

	"github.com/vigialabs/vigia/internal/risk"
)

// ErrNotFound is returned when an assessment does not exist.
var ErrNotFound = errors.New("assessment not found")

// Filter narrows a listing. Zero values mean "any".
type Filter struct {
	Region   string
	EntityID string
	MinLevel risk.Level
	Cursor   string
	Limit    int
}

// Page is one page of assessments plus continuation state.
type Page struct {
	Items      []*risk.CombinedResult
	NextCursor string
	HasMore    bool
}

// Store persists assessments.
type Store interface {
	Record(ctx context.Context, result *risk.CombinedResult) error
	Get(ctx context.Context, id string) (*risk.CombinedResult, error)
	List(ctx context.Context, f Filter) (*Page, error)
	// CountSince reports assessments recorded at or after t, for health
	// and dashboard summaries.
	CountSince(ctx context.Context, t time.Time) (int64, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
