package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/landrepurpose/lrp-smb/internal/adapter/csvstore"
	"github.com/landrepurpose/lrp-smb/internal/domain"
	"github.com/landrepurpose/lrp-smb/internal/registry"
	"github.com/spf13/cobra"
)

// Output file names written by genmock.
const (
	mockRegistry = "parcels.yaml"
	mockPrecip   = "precip.csv"
	mockET       = "et.csv"
	mockFieldKey = "field_key.csv"
	mockAttr     = "EKIfld"
)

type mockOptions struct {
	out     string
	parcels int
	start   string
	end     string
	seed    uint64
	gapRate float64
}

func genmockCommand() *cobra.Command {
	var o mockOptions

	cmd := &cobra.Command{
		Use:   "genmock",
		Short: "Write a synthetic registry and precipitation/ET exports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := generateMock(o)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d parcels, %d fields, %d days (%d gap days) to %s\n",
				stats.parcels, stats.fields, stats.days, stats.gaps, o.out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&o.out, "out", "o", "data/mock", "output directory")
	cmd.Flags().IntVar(&o.parcels, "parcels", 5, "number of parcels")
	cmd.Flags().StringVar(&o.start, "start", "2022-10-01", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&o.end, "end", "2023-09-30", "last date (YYYY-MM-DD)")
	cmd.Flags().Uint64Var(&o.seed, "seed", 1, "random seed; equal seeds give identical files")
	cmd.Flags().Float64Var(&o.gapRate, "gap-rate", 0.02, "share of parcel-days missing from the ET export")
	return cmd
}

type mockStats struct {
	parcels, fields, days, gaps int
}

type mockField struct {
	id    string
	acres float64
}

func generateMock(o mockOptions) (mockStats, error) {
	start, err := time.Parse(domain.DateLayout, o.start)
	if err != nil {
		return mockStats{}, fmt.Errorf("invalid start: %w", err)
	}
	end, err := time.Parse(domain.DateLayout, o.end)
	if err != nil {
		return mockStats{}, fmt.Errorf("invalid end: %w", err)
	}
	if end.Before(start) {
		return mockStats{}, fmt.Errorf("end %s is before start %s", o.end, o.start)
	}
	if o.parcels < 1 {
		return mockStats{}, fmt.Errorf("parcels must be at least 1, got %d", o.parcels)
	}
	if err := os.MkdirAll(o.out, 0o755); err != nil {
		return mockStats{}, err
	}

	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	stats := mockStats{parcels: o.parcels}

	parcels := make([]domain.Parcel, o.parcels)
	fields := make(map[string][]mockField, o.parcels)
	for i := range parcels {
		id := fmt.Sprintf("%05d", i+1)
		n := 1 + rng.IntN(3)
		var area float64
		for j := 0; j < n; j++ {
			f := mockField{id: fmt.Sprintf("%d%02d", i+1, j+1), acres: math.Round(5 + rng.Float64()*55)}
			fields[id] = append(fields[id], f)
			parcels[i].Fields = append(parcels[i].Fields, f.id)
			area += f.acres
		}
		stats.fields += n

		parcels[i].ID = id
		parcels[i].Name = fmt.Sprintf("Mock parcel %d", i+1)
		parcels[i].Capacity = math.Round((6+rng.Float64()*8)*100) / 100
		parcels[i].Threshold = math.Round((2+rng.Float64()*6)*100) / 100
		parcels[i].AreaAcres = area
		parcels[i].Enrollment = domain.DateRange{Start: start}
	}

	var precipRows, etRows []csvstore.Row
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		stats.days++
		date := d.Format(domain.DateLayout)
		for _, p := range parcels {
			rain := rainfall(rng, d)
			et := evapotranspiration(rng, d)
			gap := rng.Float64() < o.gapRate
			if gap {
				stats.gaps++
			}
			for _, f := range fields[p.ID] {
				precipRows = append(precipRows, csvstore.Row{Date: date, Field: f.id, Acres: f.acres, AcreFeet: rain * f.acres / 12})
				if !gap {
					etRows = append(etRows, csvstore.Row{Date: date, Field: f.id, Acres: f.acres, AcreFeet: et * f.acres / 12})
				}
			}
		}
	}

	// The field key duplicates the registry's field lists so either source
	// can drive the store.
	if err := writeFile(filepath.Join(o.out, mockRegistry), func(f *os.File) error {
		return registry.Encode(f, parcels)
	}); err != nil {
		return stats, err
	}
	if err := writeFile(filepath.Join(o.out, mockFieldKey), func(f *os.File) error {
		return csvstore.WriteFieldKey(f, mockAttr, parcels)
	}); err != nil {
		return stats, err
	}
	if err := writeFile(filepath.Join(o.out, mockPrecip), func(f *os.File) error {
		return csvstore.WriteVariable(f, mockAttr, precipRows)
	}); err != nil {
		return stats, err
	}
	if err := writeFile(filepath.Join(o.out, mockET), func(f *os.File) error {
		return csvstore.WriteVariable(f, mockAttr, etRows)
	}); err != nil {
		return stats, err
	}
	return stats, nil
}

// rainfall draws a daily depth in inches: frequent storms November to March,
// rare ones the rest of the year.
func rainfall(rng *rand.Rand, d time.Time) float64 {
	chance := 0.04
	if m := d.Month(); m >= time.November || m <= time.March {
		chance = 0.3
	}
	if rng.Float64() >= chance {
		return 0
	}
	return math.Round(rng.ExpFloat64()*0.4*1000) / 1000
}

// evapotranspiration follows a seasonal curve peaking in early summer, in
// inches per day.
func evapotranspiration(rng *rand.Rand, d time.Time) float64 {
	season := math.Sin(2 * math.Pi * float64(d.YearDay()-80) / 365)
	et := 0.06 + 0.2*math.Max(0, season) + 0.02*rng.Float64()
	return math.Round(et*1000) / 1000
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
