package climate

import "github.com/couchcryptid/climate-insights/internal/domain"

// Classify maps a percentile to a severity label and direction. The boundary
// table is ordered; the first match wins, and the two sides mirror around 50:
//
//	p < 5            extreme cold        p > 95           extreme warm
//	p ≤ 15           unusual cold        p ≥ 85           unusual warm
//	p ≤ 35           a_bit cold          p ≥ 65           a_bit warm
//	otherwise        normal (direction cold when p ≤ 50, else warm)
//
// A missing percentile or a sample below minSamples classifies as
// insufficient_data with no direction, overriding every other rule. Severity
// is purely a function of the percentile and sample sufficiency; it never
// inspects the raw physical value.
func Classify(p float64, hasPercentile bool, nSamples, minSamples int) (domain.Severity, domain.Direction) {
	if !hasPercentile || nSamples < minSamples {
		return domain.SeverityInsufficientData, domain.DirectionNone
	}

	switch {
	case p < 5:
		return domain.SeverityExtreme, domain.DirectionCold
	case p > 95:
		return domain.SeverityExtreme, domain.DirectionWarm
	case p <= 15:
		return domain.SeverityUnusual, domain.DirectionCold
	case p >= 85:
		return domain.SeverityUnusual, domain.DirectionWarm
	case p <= 35:
		return domain.SeverityABit, domain.DirectionCold
	case p >= 65:
		return domain.SeverityABit, domain.DirectionWarm
	}

	if p <= 50 {
		return domain.SeverityNormal, domain.DirectionCold
	}
	return domain.SeverityNormal, domain.DirectionWarm
}
