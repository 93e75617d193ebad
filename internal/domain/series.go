package domain

import "time"

// FillGaps returns a contiguous series at the given cadence covering
// [from, to]. Dates with no record get a StatusMissing placeholder so the
// engine emits a gap-filled state for them. Zero from/to default to the first
// and last record. Records outside the range are dropped. Untagged records are
// tagged with parcelID; a record tagged with another parcel is invalid input.
func FillGaps(parcelID string, records []ObservationRecord, from, to time.Time, cadence Cadence) ([]ObservationRecord, error) {
	key := cadenceKey(cadence)

	for i, rec := range records {
		if rec.ParcelID != "" && rec.ParcelID != parcelID {
			return nil, invalidInput(parcelID, Day(rec.Date), "record belongs to parcel %s", rec.ParcelID)
		}
		if i > 0 && !key(rec.Date).After(key(records[i-1].Date)) {
			return nil, invalidInput(parcelID, Day(rec.Date),
				"dates must be strictly increasing at %s cadence", cadence)
		}
	}

	if from.IsZero() {
		if len(records) == 0 {
			return []ObservationRecord{}, nil
		}
		from = records[0].Date
	}
	if to.IsZero() {
		if len(records) == 0 {
			return []ObservationRecord{}, nil
		}
		to = records[len(records)-1].Date
	}

	start, end := key(from), key(to)
	out := make([]ObservationRecord, 0, len(records))

	j := 0
	for j < len(records) && key(records[j].Date).Before(start) {
		j++
	}

	for cursor := start; !cursor.After(end); cursor = advance(cursor, cadence) {
		if j < len(records) && key(records[j].Date).Equal(cursor) {
			rec := records[j]
			rec.ParcelID = parcelID
			out = append(out, rec)
			j++
			continue
		}
		out = append(out, ObservationRecord{
			ParcelID: parcelID,
			Date:     cursor,
			Status:   StatusMissing,
		})
	}

	return out, nil
}

func cadenceKey(c Cadence) func(time.Time) time.Time {
	if c == CadenceMonthly {
		return func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		}
	}
	return Day
}

func advance(t time.Time, c Cadence) time.Time {
	if c == CadenceMonthly {
		return t.AddDate(0, 1, 0)
	}
	return t.AddDate(0, 0, 1)
}
