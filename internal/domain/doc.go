// Package domain models daily station climate observations and the insights
// derived from them.
//
// # Data Source
//
// Observations originate from long-running daily station records (GHCN-Daily
// style networks). The upstream ingestion service merges providers, resolves
// duplicate reports for a station-day, and publishes one flat JSON record per
// station-day to the Kafka observation topic. This service trusts that feed:
// it never fetches from providers and never arbitrates between sources.
//
// # Conventions
//
// Metrics (name carries the unit):
//
//	tavg_c  daily mean air temperature, °C
//	tmin_c  daily minimum air temperature, °C
//	tmax_c  daily maximum air temperature, °C
//
// Dates:
//
//	Calendar dates only, YYYY-MM-DD, pinned to UTC midnight ([Date]).
//	A station's series may have gaps; missing days are excluded from window
//	means, never interpolated.
//
// Calendar alignment:
//
//	Climatology compares a window against the same month/day in other years,
//	by explicit date arithmetic, not day-of-year offsets (which drift by one
//	across leap years). Feb 29 exists only in leap years; non-leap years are
//	skipped for that position. See [Date.AlignedTo].
//
// Percentile:
//
//	Mid-rank empirical percentile of a value v in a reference sample R:
//	100 × (count(r < v) + 0.5 × count(r = v)) / n. Symmetric under negation,
//	50 at the sample median, nil on an empty sample.
//
// Severity scale:
//
//	Ordered labels from the percentile's distance from 50, same thresholds on
//	both sides:
//
//	  p < 5 or p > 95     extreme
//	  p ≤ 15 or p ≥ 85    unusual
//	  p ≤ 35 or p ≥ 65    a_bit
//	  otherwise           normal
//	  sample too small    insufficient_data (overrides everything)
//
//	Direction is cold below the median, warm above. insufficient_data carries
//	no direction.
//
// Records:
//
//	A station record is the single most extreme rolling value ever observed
//	for a (station, metric, window length, highest|lowest) key, with its date
//	span and the years of data behind it. Records are replaced whole.
package domain
