// Package domain implements the Soil Moisture Budget (SMB) used to judge
// compliance of parcels enrolled in the Land Repurposing Program (LRP).
//
// # Data Source
//
// Precipitation and evapotranspiration (ET) come from OpenET field-level
// exports. A parcel (an LRP agreement) is made up of one or more provider
// fields; the store adapters area-weight them into a single depth series per
// parcel, in inches:
//
//	depth = Σ acre-feet × 12 / Σ acres
//
// Exports are usually monthly; daily series work the same way. Dates with no
// usable value become gap records (see [FillGaps]).
//
// # Balance
//
// For each date with prior storage S(t-1), precipitation P and ET:
//
//	raw     = S(t-1) + P - ET
//	S(t)    = clamp(raw, 0, capacity)
//	Deficit = max(0, -raw)
//	Demand  = max(0, ET - P - S(t-1))
//
// The partitioned model first removes effective precipitation Pe, which meets
// ET directly, and a runoff fraction of what remains:
//
//	Pe = min(P, ET, max(0, (0.70917·P^0.82416 - 0.11556)·10^(0.02426·ET)))
//
// In that model Demand is the consumptive use of applied water, the ET that
// neither Pe nor storage could cover, and it no longer equals Deficit.
//
// Gaps either carry storage forward unchanged or are interpolated linearly
// between the nearest valid neighbours; both are flagged GapFilled.
//
// # Reporting Periods
//
//	calendar-quarter:    2024-Q1 = Jan-Mar 2024
//	water-year-quarter:  WY2024-Q1 = Oct-Dec 2023 ... WY2024-Q4 = Jul-Sep 2024
//
// Dates outside a parcel's enrollment are not applicable: they are excluded
// from every sum and count.
//
// # Compliance
//
//	gap fraction > tolerance      → indeterminate (DATA_INSUFFICIENT)
//	metric ≤ threshold            → compliant     (THRESHOLD_MET)
//	metric > threshold            → non-compliant (THRESHOLD_EXCEEDED)
//
// The metric is deficit or demand, taken over the period alone or the running
// total of its reporting year.
package domain
