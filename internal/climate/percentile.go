package climate

import "math"

// Percentile places v within a reference sample using the mid-rank empirical
// convention: 100 × (count below + half the count equal) / n. Symmetric under
// negating every value, and exactly 50 when v is the sample median. The
// second return is false on an empty sample, where no rank exists.
func Percentile(v float64, sample []float64) (float64, bool) {
	if len(sample) == 0 {
		return 0, false
	}
	var below, equal int
	for _, r := range sample {
		switch {
		case r < v:
			below++
		case r == v:
			equal++
		}
	}
	return 100 * (float64(below) + 0.5*float64(equal)) / float64(len(sample)), true
}

// Quantile returns the linear-interpolated order statistic at percentile p
// (0–100) of an ascending-sorted sample. The caller guarantees sorted input;
// a single-element sample returns that element for every p.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	idx := p / 100 * float64(n-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
