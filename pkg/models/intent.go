package models

import (
	"fmt"
	"time"
)

// IntentKind is the classified purpose of a user question.
type IntentKind string

const (
	IntentGeneralHelp    IntentKind = "general_help"
	IntentLatestStatus   IntentKind = "latest_status"
	IntentPeriodStatus   IntentKind = "period_status"
	IntentAvgValue       IntentKind = "avg_value"
	IntentMaxValue       IntentKind = "max_value"
	IntentMinValue       IntentKind = "min_value"
	IntentTrend          IntentKind = "trend"
	IntentIdealCheck     IntentKind = "ideal_check"
	IntentComparePeriods IntentKind = "compare_periods"
)

// IntentKinds lists every kind the classifier may return.
var IntentKinds = []IntentKind{
	IntentGeneralHelp,
	IntentLatestStatus,
	IntentPeriodStatus,
	IntentAvgValue,
	IntentMaxValue,
	IntentMinValue,
	IntentTrend,
	IntentIdealCheck,
	IntentComparePeriods,
}

// Bounds for QueryIntent.Days.
const (
	MinDays = 1
	MaxDays = 60
)

// ParseIntentKind converts s to an IntentKind, rejecting unknown values.
func ParseIntentKind(s string) (IntentKind, error) {
	for _, k := range IntentKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown intent kind %q", s)
}

// NeedsTelemetry reports whether answering k requires device and site
// identifiers.
func (k IntentKind) NeedsTelemetry() bool {
	return k != IntentGeneralHelp
}

// RequiresParameter reports whether k cannot be answered without a
// parameter.
func (k IntentKind) RequiresParameter() bool {
	switch k {
	case IntentAvgValue, IntentMaxValue, IntentMinValue, IntentTrend, IntentIdealCheck:
		return true
	}
	return false
}

// QueryIntent is the structured form of a question. It comes from an
// external classifier and is untrusted until Normalize has run.
type QueryIntent struct {
	Kind         IntentKind      `json:"intent"`
	Parameter    *WaterParameter `json:"parameter,omitempty"`
	Start        *time.Time      `json:"start,omitempty"`
	End          *time.Time      `json:"end,omitempty"`
	Days         *int            `json:"days,omitempty"`
	IncludeIdeal *bool           `json:"include_ideal,omitempty"`
}

// Normalize enforces the intent invariants in place:
//   - general_help carries no other field;
//   - unknown parameters are dropped;
//   - days below MinDays are dropped, above MaxDays clamped;
//   - reversed start/end are swapped.
func (q *QueryIntent) Normalize() {
	if q.Kind == IntentGeneralHelp {
		*q = QueryIntent{Kind: IntentGeneralHelp}
		return
	}
	if q.Parameter != nil && !q.Parameter.Valid() {
		q.Parameter = nil
	}
	if q.Days != nil {
		switch d := *q.Days; {
		case d < MinDays:
			q.Days = nil
		case d > MaxDays:
			maxDays := MaxDays
			q.Days = &maxDays
		}
	}
	if q.Start != nil && q.End != nil && q.Start.After(*q.End) {
		q.Start, q.End = q.End, q.Start
	}
}
