package domain

import "errors"

// Engine error taxonomy. Insufficient historical context is never one of
// these; it degrades to SeverityInsufficientData inside a well-formed
// Insight. Only structurally invalid requests or total absence of
// observations are hard failures.
var (
	// ErrInsufficientCoverage reports a window with observations present but
	// too many missing days to clear the configured coverage floor.
	ErrInsufficientCoverage = errors.New("insufficient coverage in window")

	// ErrNoClimatology reports an empty reference sample (zero aligned
	// historical years). Internal signal; query paths fold it into
	// severity=insufficient_data instead of failing.
	ErrNoClimatology = errors.New("no climatology data")

	// ErrNoDataForDate reports a window or key with no observations at all,
	// typically upstream publication lag at the requested end date.
	ErrNoDataForDate = errors.New("no data for date")

	// ErrInvalidParameter reports a structurally invalid request: non-positive
	// window_days, malformed date, unknown metric or direction.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrStationNotFound reports an id absent from the station registry.
	ErrStationNotFound = errors.New("station not found")
)
