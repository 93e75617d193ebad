package csvstore

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/landrepurpose/lrp-smb/internal/domain"
)

// Row is one line of a variable export.
type Row struct {
	Date     string
	Field    string
	Acres    float64
	AcreFeet float64
}

// WriteVariable writes rows as a variable export with the given field attribute.
func WriteVariable(w io.Writer, attr string, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", attr, "acres", "acre-feet"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			r.Date,
			r.Field,
			strconv.FormatFloat(r.Acres, 'f', -1, 64),
			strconv.FormatFloat(r.AcreFeet, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFieldKey writes the parcel-to-field mapping for parcels.
func WriteFieldKey(w io.Writer, attr string, parcels []domain.Parcel) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"parcel_id", attr}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range parcels {
		for _, f := range p.Fields {
			if err := cw.Write([]string{p.ID, f}); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
