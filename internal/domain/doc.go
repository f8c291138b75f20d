// Package domain models crowd-sourced seismic signal fusion.
//
// # Data Source
//
// Signals originate from mobile devices running an on-device STA/LTA
// trigger. When the trigger fires, the device reports its peak ground
// acceleration (PGA, in units of g) together with its last known
// coordinates. Individual reports are noisy: a phone dropped on a table
// produces the same kind of reading as real shaking. The fusion core
// therefore never trusts a single signal; it decides by corroboration.
//
// # Quorum
//
// Confirmation requires that the fraction of nearby active devices which
// reported shaking meets a population-dependent threshold. Small areas
// need a high fraction (one or two devices are weak evidence), dense areas
// need only a small fraction (independent corroboration from many devices
// is itself strong evidence). The thresholds form a monotonically
// non-increasing step table over population size:
//
//	population ≤ 5   → 0.60
//	population ≤ 20  → 0.40
//	population ≤ 100 → 0.25
//	otherwise        → 0.15
//
// Two carve-outs sit on top of the ratio test:
//
//   - Readings above a realism ceiling (5.0 g) are sensor or software
//     artifacts; real near-field PGA tops out around 3 g. Such signals are
//     rejected outright and never confirm anything.
//   - Where the nearby population is at or below a small-area bound
//     (default 2), the ratio test is statistically meaningless and a single
//     qualifying signal confirms. This trades false-positive risk for
//     sensitivity where corroboration is structurally unavailable; the
//     bound is configuration, not a constant.
//
// # Intensity
//
// Confirmed events carry a discrete severity label derived from the
// cluster's mean PGA via a nine-band step table (thresholds in g):
//
//	<0.0005 imperceptible | <0.003 weak | <0.028 light | <0.062 moderate
//	<0.12 strong | <0.22 very strong | <0.40 destructive
//	<0.75 very destructive | ≥0.75 extreme
//
// The bands follow the usual instrumental-intensity correlations; the
// label set is a project-specific simplification for user-facing display.
//
// # Geometry
//
// All distances are great-circle (haversine) kilometers over WGS-84
// coordinates. A confirmed event's location is the centroid of the
// signals that formed its cluster, deliberately decoupled from whichever
// device happened to trigger the analysis.
package domain
