package series

import (
	"time"

	"github.com/HerbHall/aquabot/pkg/models"
)

// DefaultWindow is the look-back used when an intent names no period.
const DefaultWindow = 24 * time.Hour

// PeriodResolver turns an intent's period fields into a concrete window.
type PeriodResolver struct {
	// Now returns the current time in the process zone. Nil means
	// time.Now.
	Now func() time.Time
}

// Resolve returns [start, end] for q. The clock is read once. Without days
// the window is the last DefaultWindow; with days it is the last days*24h.
// An explicit Start or End replaces the matching bound independently; a
// window that ends up reversed is swapped.
func (r PeriodResolver) Resolve(q models.QueryIntent) (start, end time.Time) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	end = now()

	window := DefaultWindow
	if q.Days != nil {
		window = time.Duration(*q.Days) * 24 * time.Hour
	}
	start = end.Add(-window)

	if q.Start != nil {
		start = *q.Start
	}
	if q.End != nil {
		end = *q.End
	}
	if start.After(end) {
		start, end = end, start
	}
	return start, end
}
