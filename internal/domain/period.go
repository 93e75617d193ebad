package domain

import (
	"fmt"
	"time"
)

// PeriodFor returns the reporting period containing date under scheme.
//
// Calendar quarters are named "2024-Q1" (Jan-Mar). Water-year quarters follow
// the program's reporting calendar: the water year ends on 30 September, so
// "WY2024-Q1" covers Oct-Dec 2023 and "WY2024-Q4" covers Jul-Sep 2024.
func PeriodFor(date time.Time, scheme PeriodScheme) Period {
	date = Day(date)
	y, m := date.Year(), date.Month()

	calQuarter := (int(m)-1)/3 + 1
	start := time.Date(y, time.Month(3*(calQuarter-1)+1), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 3, -1)

	if scheme == SchemeWaterYearQuarter {
		wy := y
		if m >= time.October {
			wy = y + 1
		}
		q := calQuarter%4 + 1
		return Period{
			ID:    fmt.Sprintf("WY%d-Q%d", wy, q),
			Start: start,
			End:   end,
			Year:  wy,
		}
	}

	return Period{
		ID:    fmt.Sprintf("%d-Q%d", y, calQuarter),
		Start: start,
		End:   end,
		Year:  y,
	}
}
