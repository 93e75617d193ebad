package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/landrepurpose/lrp-smb/internal/adapter/sqlite"
	"github.com/landrepurpose/lrp-smb/internal/domain"
	"github.com/landrepurpose/lrp-smb/internal/pipeline"
	"github.com/landrepurpose/lrp-smb/internal/registry"
	"github.com/landrepurpose/lrp-smb/internal/report"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func evaluateCommand(v *viper.Viper) *cobra.Command {
	var (
		out         string
		format      string
		parcelIDs   []string
		keepHistory bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate every registered parcel once and print the statements",
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
			parcels = selectParcels(parcels, parcelIDs)

			source, closeSource, err := s.openSource(logger)
			if err != nil {
				return err
			}
			defer closeSource() //nolint:errcheck // read-only use

			runner, err := pipeline.NewRunner(source, s.opts, s.workers, logger, nil)
			if err != nil {
				return err
			}
			runner.WithAsOf(s.csv.EndDate)
			batch := runner.EvaluateAll(cmd.Context(), parcels)

			if keepHistory {
				store, ok := source.(*sqlite.Store)
				if !ok {
					return fmt.Errorf("--history needs the sqlite backend")
				}
				if err := store.LoadBatch(cmd.Context(), batch.Verdicts()); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			if err := writeBatch(w, format, batch, s); err != nil {
				return err
			}

			if n := len(batch.Errors); n > 0 {
				return fmt.Errorf("%d of %d parcels could not be evaluated", n, len(batch.ParcelIDs()))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().StringVar(&format, "format", "text", "text statement or json verdicts")
	cmd.Flags().StringSliceVar(&parcelIDs, "parcel", nil, "evaluate only these parcel ids")
	cmd.Flags().BoolVar(&keepHistory, "history", false, "append the verdicts to the sqlite verdict history")
	return cmd
}

type jsonParcel struct {
	ParcelID string `json:"parcel_id"`
	Error    string `json:"error,omitempty"`
	pipeline.ParcelResult
}

func writeBatch(w io.Writer, format string, batch pipeline.BatchResult, s *settings) error {
	switch format {
	case "text":
		return report.Render(w, batch, s.opts)
	case "json":
		out := make([]jsonParcel, 0, len(batch.ParcelIDs()))
		for _, id := range batch.ParcelIDs() {
			p := jsonParcel{ParcelID: id}
			if err, failed := batch.Errors[id]; failed {
				p.Error = err.Error()
			} else {
				p.ParcelResult = batch.Results[id]
				p.States = nil
			}
			out = append(out, p)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encode verdicts: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// selectParcels keeps the parcels named in ids, or all of them when ids is
// empty. Unknown ids are kept as bare parcels so they surface as errors.
func selectParcels(parcels []domain.Parcel, ids []string) []domain.Parcel {
	if len(ids) == 0 {
		return parcels
	}
	byID := make(map[string]domain.Parcel, len(parcels))
	for _, p := range parcels {
		byID[p.ID] = p
	}
	out := make([]domain.Parcel, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			p = domain.Parcel{ID: id}
		}
		out = append(out, p)
	}
	return out
}
