package assistant

import "errors"

var (
	// ErrClassifierUnavailable is returned when a question cannot be
	// classified. The pipeline never guesses an intent in its place.
	ErrClassifierUnavailable = errors.New("intent classifier unavailable")

	// ErrMissingIdentifiers is returned for telemetry questions that lack
	// device_id or site_id.
	ErrMissingIdentifiers = errors.New("device_id and site_id are required for telemetry questions")
)
