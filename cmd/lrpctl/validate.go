package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/landrepurpose/lrp-smb/internal/adapter/sqlite"
	"github.com/landrepurpose/lrp-smb/internal/domain"
	"github.com/landrepurpose/lrp-smb/internal/pipeline"
	"github.com/landrepurpose/lrp-smb/internal/registry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// phase tracks pass/fail for a validation phase. Notes are informational and
// never fail the phase.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func validateCommand(v *viper.Viper) *cobra.Command {
	var importTo string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the registry and exports, optionally importing them into SQLite",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			logger := s.logger(cmd)

			parcels, err := registry.Load(s.registry)
			if err != nil {
				return err
			}
			source, closeSource, err := s.openSource(logger)
			if err != nil {
				return err
			}
			defer closeSource() //nolint:errcheck // read-only use

			series, phases := runValidation(cmd.Context(), parcels, source, s.opts, s.csv.EndDate)

			if importTo != "" {
				imp := importSeries(cmd.Context(), importTo, series, s.csv.EndDate, logger)
				phases = append(phases, imp)
			}

			if !printPhases(cmd.OutOrStdout(), phases, len(parcels)) {
				return errors.New("validation failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&importTo, "import", "", "save the validated observations into this SQLite database")
	return cmd
}

// runValidation loads every parcel's series once and runs the phases over it.
func runValidation(ctx context.Context, parcels []domain.Parcel, source pipeline.SeriesSource, opts domain.Options, asOf time.Time) (map[string][]domain.ObservationRecord, []*phase) {
	reg := validateRegistry(parcels, opts)

	obs := &phase{name: "Phase 2: Observations (exports per parcel)"}
	series := make(map[string][]domain.ObservationRecord, len(parcels))
	for _, p := range parcels {
		recs, err := source.Observations(ctx, p)
		if err != nil {
			obs.errorf("parcel %s: %v", p.ID, err)
			continue
		}
		series[p.ID] = recs
		checkSeries(obs, p, recs)
	}

	return series, []*phase{reg, obs, validateSufficiency(parcels, series, opts, asOf)}
}

func validateRegistry(parcels []domain.Parcel, opts domain.Options) *phase {
	p := &phase{name: "Phase 1: Registry (parcel reference data)"}
	if len(parcels) == 0 {
		p.errorf("registry lists no parcels")
	}
	for _, parcel := range parcels {
		if err := parcel.Validate(); err != nil {
			p.errorf("%v", err)
		}
		if math.IsNaN(parcel.Capacity) || parcel.Capacity <= 0 {
			p.errorf("parcel %s: capacity must be positive, got %v", parcel.ID, parcel.Capacity)
		}
		if s := parcel.StartingStorage(opts); s < 0 || s > parcel.Capacity {
			p.errorf("parcel %s: initial storage %v outside [0, %v]", parcel.ID, s, parcel.Capacity)
		}
		if parcel.AreaAcres <= 0 {
			p.notef("parcel %s: no area recorded, report will omit acre-feet", parcel.ID)
		}
		if parcel.Enrollment.Start.IsZero() {
			p.notef("parcel %s: open enrollment start, every observation counts", parcel.ID)
		}
	}
	return p
}

func checkSeries(p *phase, parcel domain.Parcel, recs []domain.ObservationRecord) {
	var missing, invalid int
	for i, r := range recs {
		if i > 0 && !r.Date.After(recs[i-1].Date) {
			p.errorf("parcel %s: date %s out of order", parcel.ID, r.Date.Format(domain.DateLayout))
		}
		if !r.Usable() {
			if r.Status == domain.StatusInvalid {
				invalid++
			} else {
				missing++
			}
			continue
		}
		if r.Precipitation < 0 || r.Evapotranspiration < 0 {
			p.errorf("parcel %s: negative flux on %s", parcel.ID, r.Date.Format(domain.DateLayout))
		}
	}
	if missing+invalid > 0 {
		p.notef("parcel %s: %d records, %d missing, %d invalid", parcel.ID, len(recs), missing, invalid)
	}
}

// validateSufficiency runs the engine and notes every period that would come
// out indeterminate. Processing errors fail the phase.
func validateSufficiency(parcels []domain.Parcel, series map[string][]domain.ObservationRecord, opts domain.Options, asOf time.Time) *phase {
	p := &phase{name: "Phase 3: Data Sufficiency (gap tolerance)"}
	proc, err := pipeline.NewProcessor(opts)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	proc.WithAsOf(asOf)
	for _, parcel := range parcels {
		recs, ok := series[parcel.ID]
		if !ok {
			continue
		}
		res, err := proc.Process(parcel, recs)
		if err != nil {
			p.errorf("parcel %s: %v", parcel.ID, err)
			continue
		}
		for i, v := range res.Verdicts {
			if v.Status == domain.VerdictIndeterminate {
				s := res.Summaries[i]
				p.notef("parcel %s %s: %d of %d days gap-filled, above tolerance %.2f",
					parcel.ID, v.PeriodID, s.GapFilledCount, s.TotalCount, opts.GapTolerance)
			}
		}
	}
	return p
}

func importSeries(ctx context.Context, path string, series map[string][]domain.ObservationRecord, endDate time.Time, logger *slog.Logger) *phase {
	p := &phase{name: "Phase 4: Import (SQLite)"}
	store, err := sqlite.Open(path, endDate, logger)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	defer store.Close() //nolint:errcheck // reported by SaveObservations

	var total int
	for id, recs := range series {
		if err := store.SaveObservations(ctx, recs); err != nil {
			p.errorf("parcel %s: %v", id, err)
			continue
		}
		total += len(recs)
	}
	p.notef("imported %d records for %d parcels into %s", total, len(series), path)
	return p
}

func printPhases(w io.Writer, phases []*phase, parcels int) bool {
	fmt.Fprintln(w, "=== LRP Registry and Export Validation ===")
	fmt.Fprintln(w)

	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-46s %s\n", p.name, status)
	}
	fmt.Fprintf(w, "\nParcels: %d\n", parcels)

	for _, p := range phases {
		if p.passed() && len(p.notes) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
		for _, n := range p.notes {
			fmt.Fprintf(w, "  note: %s\n", n)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return true
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return false
}
