// Package registry reads and writes the parcel reference data: one YAML
// document listing every enrolled parcel with its capacity, threshold and
// enrollment window.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/landrepurpose/lrp-smb/internal/domain"
	"gopkg.in/yaml.v3"
)

// document is the on-disk layout.
type document struct {
	Parcels []parcelEntry `yaml:"parcels"`
}

type parcelEntry struct {
	ID             string          `yaml:"id"`
	Name           string          `yaml:"name,omitempty"`
	Capacity       float64         `yaml:"capacity"`
	InitialStorage *float64        `yaml:"initial_storage,omitempty"`
	Threshold      float64         `yaml:"threshold"`
	AreaAcres      float64         `yaml:"area_acres,omitempty"`
	Fields         []string        `yaml:"fields,omitempty"`
	Enrollment     enrollmentEntry `yaml:"enrollment"`
}

type enrollmentEntry struct {
	Start string `yaml:"start"`
	End   string `yaml:"end,omitempty"`
}

// Load reads the registry file at path.
func Load(path string) ([]domain.Parcel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// File is a registry path. It re-reads the file on every call so edits are
// picked up by the next evaluation pass.
type File string

// Parcels loads the registry.
func (f File) Parcels(_ context.Context) ([]domain.Parcel, error) {
	return Load(string(f))
}

// Decode parses a registry document. Unknown keys are rejected so a typo in a
// threshold or capacity key cannot silently fall back to zero. Parcels are
// returned sorted by ID.
func Decode(r io.Reader) ([]domain.Parcel, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return []domain.Parcel{}, nil
		}
		return nil, fmt.Errorf("decode registry: %w", err)
	}

	parcels := make([]domain.Parcel, 0, len(doc.Parcels))
	seen := make(map[string]struct{}, len(doc.Parcels))
	for i, e := range doc.Parcels {
		if e.ID == "" {
			return nil, fmt.Errorf("registry entry %d: missing id", i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("registry entry %d: duplicate parcel id %s", i, e.ID)
		}
		seen[e.ID] = struct{}{}

		p, err := e.toParcel()
		if err != nil {
			return nil, fmt.Errorf("registry parcel %s: %w", e.ID, err)
		}
		parcels = append(parcels, p)
	}

	sort.Slice(parcels, func(i, j int) bool { return parcels[i].ID < parcels[j].ID })
	return parcels, nil
}

// Encode writes parcels as a registry document.
func Encode(w io.Writer, parcels []domain.Parcel) error {
	doc := document{Parcels: make([]parcelEntry, len(parcels))}
	for i, p := range parcels {
		doc.Parcels[i] = fromParcel(p)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	return enc.Close()
}

func (e parcelEntry) toParcel() (domain.Parcel, error) {
	start, err := parseDate(e.Enrollment.Start)
	if err != nil {
		return domain.Parcel{}, fmt.Errorf("enrollment start: %w", err)
	}
	end, err := parseDate(e.Enrollment.End)
	if err != nil {
		return domain.Parcel{}, fmt.Errorf("enrollment end: %w", err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return domain.Parcel{}, fmt.Errorf("enrollment ends %s before it starts %s", e.Enrollment.End, e.Enrollment.Start)
	}

	return domain.Parcel{
		ID:             e.ID,
		Name:           e.Name,
		Capacity:       e.Capacity,
		InitialStorage: e.InitialStorage,
		Threshold:      e.Threshold,
		Enrollment:     domain.DateRange{Start: start, End: end},
		AreaAcres:      e.AreaAcres,
		Fields:         e.Fields,
	}, nil
}

func fromParcel(p domain.Parcel) parcelEntry {
	return parcelEntry{
		ID:             p.ID,
		Name:           p.Name,
		Capacity:       p.Capacity,
		InitialStorage: p.InitialStorage,
		Threshold:      p.Threshold,
		AreaAcres:      p.AreaAcres,
		Fields:         p.Fields,
		Enrollment: enrollmentEntry{
			Start: formatDate(p.Enrollment.Start),
			End:   formatDate(p.Enrollment.End),
		},
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(domain.DateLayout, s)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}
