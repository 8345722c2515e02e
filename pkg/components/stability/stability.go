// Package stability implements the Poisson no-event probability model used
// to estimate how likely a component is to go untouched over the packing
// horizon.
package stability

import "math"

const (
	// SecsPerDay is used to convert the lookback window to seconds.
	SecsPerDay = 60 * 60 * 24

	// PeriodDays is the horizon the probability is computed over.
	PeriodDays = 7.0

	// LookbackDays bounds how far back changelog timestamps are considered.
	LookbackDays = 365
)

// Calculate returns the probability that a component sees zero changelog
// events over PeriodDays, given its changelog timestamps and build time
// (both Unix seconds), evaluated as of now (Unix seconds).
//
// events may be empty; buildTime is then used as the sole event. An empty
// window after restricting to the lookback returns 0.99 (very stable); a
// component whose oldest retained event is less than a day old returns 0.0
// (too new to have a meaningful rate).
func Calculate(now uint64, events []uint64, buildTime uint64) float64 {
	if len(events) == 0 {
		events = []uint64{buildTime}
	}

	windowStart := uint64(0)
	if now > uint64(LookbackDays)*SecsPerDay {
		windowStart = now - uint64(LookbackDays)*SecsPerDay
	}

	var restricted []uint64
	for _, t := range events {
		if t >= windowStart {
			restricted = append(restricted, t)
		}
	}
	if len(restricted) == 0 {
		return 0.99
	}

	oldest := restricted[0]
	for _, t := range restricted[1:] {
		if t < oldest {
			oldest = t
		}
	}

	var spanDays float64
	if now > oldest {
		spanDays = float64(now-oldest) / SecsPerDay
	}
	if spanDays < 1 {
		return 0.0
	}

	lambda := float64(len(restricted)) / spanDays
	return math.Exp(-lambda * PeriodDays)
}
