package models

import "errors"

// Error taxonomy for the engine. Data acquisition failures abort the run;
// a missing regime only degrades the signal combiner.
var (
	// ErrInsufficientData means the available window is shorter than the
	// configured minimum. Fatal for the current run: no partial signal is
	// emitted.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDataUnavailable means the upstream market data fetch failed. The
	// engine performs no retry beyond the client's own and surfaces this to
	// the caller for scheduling-level retry.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrRegimeUnavailable means the regime classifier had too little
	// training data or degenerated numerically. Non-fatal: the combiner
	// skips regime-dependent conditions.
	ErrRegimeUnavailable = errors.New("regime classification unavailable")
)
