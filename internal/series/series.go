// Package series computes summaries over readings of a single water
// parameter. Every function is pure and never reorders its input unless
// documented.
package series

import (
	"math"
	"slices"

	"github.com/HerbHall/aquabot/pkg/models"
)

// StableThreshold is the absolute delta under which a trend is stable.
const StableThreshold = 1e-9

// Mode selects which extreme Extreme looks for.
type Mode int

const (
	Max Mode = iota
	Min
)

// Summarize reports count, min, max and mean of s. The window is the
// earliest and latest timestamp found; the unit is taken from the first
// point. It returns false for an empty series.
func Summarize(s models.Series) (*models.SeriesSummary, bool) {
	if len(s) == 0 {
		return nil, false
	}
	sum := models.SeriesSummary{
		Start: s[0].Timestamp,
		End:   s[0].Timestamp,
		Count: len(s),
		Min:   s[0].Value,
		Max:   s[0].Value,
		Unit:  s[0].Unit,
	}
	var total float64
	for _, p := range s {
		total += p.Value
		sum.Min = math.Min(sum.Min, p.Value)
		sum.Max = math.Max(sum.Max, p.Value)
		if p.Timestamp.Before(sum.Start) {
			sum.Start = p.Timestamp
		}
		if p.Timestamp.After(sum.End) {
			sum.End = p.Timestamp
		}
	}
	sum.Avg = total / float64(len(s))
	return &sum, true
}

// Extreme returns the point with the largest (Max) or smallest (Min)
// value. Ties keep the first point in input order.
func Extreme(s models.Series, mode Mode) (*models.MeasurementPoint, bool) {
	if len(s) == 0 {
		return nil, false
	}
	best := 0
	for i := 1; i < len(s); i++ {
		if mode == Max && s[i].Value > s[best].Value ||
			mode == Min && s[i].Value < s[best].Value {
			best = i
		}
	}
	p := s[best]
	return &p, true
}

// Trend compares the first and last points of s as given. s must already
// be in ascending chronological order (see SortChronological). It returns
// false for fewer than two points.
func Trend(s models.Series) (*models.TrendResult, bool) {
	if len(s) < 2 {
		return nil, false
	}
	first, last := s[0], s[len(s)-1]
	delta := last.Value - first.Value

	dir := models.DirectionDown
	switch {
	case math.Abs(delta) < StableThreshold:
		dir = models.DirectionStable
	case delta > 0:
		dir = models.DirectionUp
	}

	return &models.TrendResult{
		Start:     first.Timestamp,
		End:       last.Timestamp,
		First:     first.Value,
		Last:      last.Value,
		Delta:     delta,
		Direction: dir,
		Unit:      first.Unit,
		Count:     len(s),
	}, true
}

// SortChronological returns a copy of s ordered by ascending timestamp.
// Points sharing a timestamp keep their input order.
func SortChronological(s models.Series) models.Series {
	out := slices.Clone(s)
	slices.SortStableFunc(out, func(a, b models.MeasurementPoint) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

// Latest returns the point with the greatest timestamp, the first one on
// ties.
func Latest(s models.Series) (*models.MeasurementPoint, bool) {
	if len(s) == 0 {
		return nil, false
	}
	best := 0
	for i := 1; i < len(s); i++ {
		if s[i].Timestamp.After(s[best].Timestamp) {
			best = i
		}
	}
	p := s[best]
	return &p, true
}
