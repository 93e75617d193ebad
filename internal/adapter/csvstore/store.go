// Package csvstore serves parcel observation series from OpenET-style field
// exports. Each variable (precipitation, ET) is one CSV with the columns
//
//	time,<field attribute>,acres,acre-feet
//
// and a field-key CSV maps parcel ids to the provider fields that make them
// up. A parcel's depth for a date is the area-weighted mean of its fields:
// Σ acre-feet × 12 / Σ acres, in inches.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/landrepurpose/lrp-smb/internal/domain"
)

const feetToInches = 12

// ErrNoData is returned when none of a parcel's fields appear in an export.
var ErrNoData = errors.New("no data for parcel")

// parcelColumns are the accepted headers for the parcel id in the field key.
var parcelColumns = []string{"parcel_id", "concat_appl_ID"}

var timeLayouts = []string{
	domain.DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"1/2/2006",
}

// Config names the exports and how to read them.
type Config struct {
	PrecipPath     string
	ETPath         string
	FieldKeyPath   string // optional when every parcel lists its own fields
	FieldAttribute string
	EndDate        time.Time // rows dated after it are dropped; zero keeps all
}

// sample is one field's contribution on one date.
type sample struct {
	acres    float64
	acreFeet float64
	bad      bool
}

// variable holds one export indexed by field then date.
type variable map[string]map[time.Time]sample

// Store answers observation queries from exports held in memory.
type Store struct {
	precip variable
	et     variable
	keys   map[string][]string
}

// Open reads all exports named in cfg.
func Open(cfg Config) (*Store, error) {
	if cfg.FieldAttribute == "" {
		cfg.FieldAttribute = "EKIfld"
	}

	precip, err := readVariableFile(cfg.PrecipPath, cfg.FieldAttribute, cfg.EndDate)
	if err != nil {
		return nil, fmt.Errorf("read precipitation export: %w", err)
	}
	et, err := readVariableFile(cfg.ETPath, cfg.FieldAttribute, cfg.EndDate)
	if err != nil {
		return nil, fmt.Errorf("read evapotranspiration export: %w", err)
	}

	keys := map[string][]string{}
	if cfg.FieldKeyPath != "" {
		f, err := os.Open(cfg.FieldKeyPath)
		if err != nil {
			return nil, fmt.Errorf("open field key: %w", err)
		}
		defer f.Close()
		if keys, err = ReadFieldKey(f, cfg.FieldAttribute); err != nil {
			return nil, fmt.Errorf("read field key: %w", err)
		}
	}

	return &Store{precip: precip, et: et, keys: keys}, nil
}

// New builds a Store from already-open readers. keys may be nil.
func New(precip, et, keys io.Reader, attr string, endDate time.Time) (*Store, error) {
	p, err := readVariable(precip, attr, endDate)
	if err != nil {
		return nil, fmt.Errorf("read precipitation export: %w", err)
	}
	e, err := readVariable(et, attr, endDate)
	if err != nil {
		return nil, fmt.Errorf("read evapotranspiration export: %w", err)
	}
	k := map[string][]string{}
	if keys != nil {
		if k, err = ReadFieldKey(keys, attr); err != nil {
			return nil, fmt.Errorf("read field key: %w", err)
		}
	}
	return &Store{precip: p, et: e, keys: k}, nil
}

// Fields returns the provider fields that make up the parcel. A parcel's own
// field list wins over the key file.
func (s *Store) Fields(p domain.Parcel) []string {
	if len(p.Fields) > 0 {
		return p.Fields
	}
	return s.keys[p.ID]
}

// Observations returns the parcel's area-weighted series in date order. A date
// seen in only one export is marked missing; one with an unreadable value or
// zero area is marked invalid.
func (s *Store) Observations(ctx context.Context, p domain.Parcel) ([]domain.ObservationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fields := s.Fields(p)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w %s: no fields mapped", ErrNoData, p.ID)
	}

	pp, ppFound := weighted(s.precip, fields)
	et, etFound := weighted(s.et, fields)
	if !ppFound {
		return nil, fmt.Errorf("%w %s: precipitation export has none of fields %v", ErrNoData, p.ID, fields)
	}
	if !etFound {
		return nil, fmt.Errorf("%w %s: evapotranspiration export has none of fields %v", ErrNoData, p.ID, fields)
	}

	dates := make(map[time.Time]struct{}, len(pp))
	for d := range pp {
		dates[d] = struct{}{}
	}
	for d := range et {
		dates[d] = struct{}{}
	}

	records := make([]domain.ObservationRecord, 0, len(dates))
	for d := range dates {
		rec := domain.ObservationRecord{ParcelID: p.ID, Date: d, Status: domain.StatusValid}
		precip, okP := pp[d]
		evap, okE := et[d]
		switch {
		case !okP || !okE:
			rec.Status = domain.StatusMissing
		case math.IsNaN(precip) || math.IsNaN(evap):
			rec.Status = domain.StatusInvalid
		default:
			rec.Precipitation = precip
			rec.Evapotranspiration = evap
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
	return records, nil
}

// weighted area-weights a variable over fields per date. A date with an
// unreadable row or zero total area yields NaN. found reports whether any of
// the fields appear at all.
func weighted(v variable, fields []string) (map[time.Time]float64, bool) {
	type total struct {
		acres, acreFeet float64
		bad             bool
	}
	totals := map[time.Time]*total{}
	found := false

	for _, f := range fields {
		series, ok := v[f]
		if !ok {
			continue
		}
		found = true
		for d, s := range series {
			t := totals[d]
			if t == nil {
				t = &total{}
				totals[d] = t
			}
			t.acres += s.acres
			t.acreFeet += s.acreFeet
			t.bad = t.bad || s.bad
		}
	}

	out := make(map[time.Time]float64, len(totals))
	for d, t := range totals {
		if t.bad || t.acres <= 0 {
			out[d] = math.NaN()
			continue
		}
		out[d] = t.acreFeet * feetToInches / t.acres
	}
	return out, found
}

func readVariableFile(path, attr string, endDate time.Time) (variable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readVariable(f, attr, endDate)
}

// readVariable parses one variable export. Duplicate (time, field) rows keep
// the last occurrence, matching how merged downloads are deduplicated.
func readVariable(r io.Reader, attr string, endDate time.Time) (variable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := columns(header, "time", attr, "acres", "acre-feet")
	if err != nil {
		return nil, err
	}

	out := variable{}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := parseTime(row[idx[0]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !endDate.IsZero() && date.After(domain.Day(endDate)) {
			continue
		}

		field := strings.TrimSpace(row[idx[1]])
		s := sample{}
		var errA, errF error
		s.acres, errA = strconv.ParseFloat(strings.TrimSpace(row[idx[2]]), 64)
		s.acreFeet, errF = strconv.ParseFloat(strings.TrimSpace(row[idx[3]]), 64)
		s.bad = errA != nil || errF != nil

		if out[field] == nil {
			out[field] = map[time.Time]sample{}
		}
		out[field][date] = s
	}
	return out, nil
}

// ReadFieldKey parses the parcel-to-field mapping.
func ReadFieldKey(r io.Reader, attr string) (map[string][]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	parcelCol := -1
	for _, name := range parcelColumns {
		if i := indexOf(header, name); i >= 0 {
			parcelCol = i
			break
		}
	}
	if parcelCol < 0 {
		return nil, fmt.Errorf("missing column %s", strings.Join(parcelColumns, " or "))
	}
	fieldCol := indexOf(header, attr)
	if fieldCol < 0 {
		return nil, fmt.Errorf("missing column %s", attr)
	}

	keys := map[string][]string{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if parcelCol >= len(row) || fieldCol >= len(row) {
			continue
		}
		id, field := strings.TrimSpace(row[parcelCol]), strings.TrimSpace(row[fieldCol])
		if id == "" || field == "" {
			continue
		}
		keys[id] = append(keys[id], field)
	}
	return keys, nil
}

func columns(header []string, names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		idx[i] = indexOf(header, n)
		if idx[i] < 0 {
			return nil, fmt.Errorf("missing column %s", n)
		}
	}
	return idx, nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
