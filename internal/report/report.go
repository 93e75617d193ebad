// Package report renders evaluation batches as plain-text quarterly
// consumptive-use statements, one per parcel, ordered by parcel id.
package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"text/template"
	"time"

	"github.com/landrepurpose/lrp-smb/internal/domain"
	"github.com/landrepurpose/lrp-smb/internal/pipeline"
)

const statementTemplate = `{{- range .Statements -}}
QUARTERLY CONSUMPTIVE WATER USE STATEMENT
LAND REPURPOSING PROGRAM (LRP)

Parcel:	{{ .ID }}{{ with .Name }} {{ . }}{{ end }}
Area:	{{ if .HasArea }}{{ f2 .Acres }} acres{{ else }}not recorded{{ end }}
Threshold:	{{ f2 .Threshold }} in ({{ $.Metric }}, {{ $.Basis }})
Evaluated:	{{ $.Evaluated }}

Period	Months	ET (in)	P (in)	Pe (in)	{{ $.MetricLabel }} (in)	{{ $.MetricLabel }} (AF)	YTD (AF)	Verdict
{{- range .Rows }}
{{ .PeriodID }}	{{ .Months }}	{{ f2 .ET }}	{{ f2 .P }}	{{ f2 .Pe }}	{{ f2 .Metric }}	{{ af .MetricAF }}	{{ af .YTDAF }}	{{ .Verdict }}
{{- end }}
Total	 	{{ f2 .Total.ET }}	{{ f2 .Total.P }}	{{ f2 .Total.Pe }}	{{ f2 .Total.Metric }}	{{ af .Total.MetricAF }}	 	 

in=inches; AF=acre-feet; Pe=effective precipitation

{{ end -}}
{{- if .Errors -}}
PARCELS NOT EVALUATED
{{ range .Errors -}}
{{ .ID }}	{{ .Error }}
{{ end -}}
{{- end -}}
`

var statement = template.Must(template.New("statement").Funcs(template.FuncMap{
	"f2": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"af": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%.2f", *v)
	},
}).Parse(statementTemplate))

type view struct {
	Metric      domain.Metric
	MetricLabel string
	Basis       domain.Basis
	Evaluated   string
	Statements  []parcelView
	Errors      []errorView
}

type parcelView struct {
	ID        string
	Name      string
	Acres     float64
	HasArea   bool
	Threshold float64
	Rows      []rowView
	Total     rowView
}

type rowView struct {
	PeriodID string
	Months   string
	ET       float64
	P        float64
	Pe       float64
	Metric   float64
	MetricAF *float64
	YTDAF    *float64
	Verdict  string
}

type errorView struct {
	ID    string
	Error string
}

// Render writes one statement per evaluated parcel, followed by the parcels
// that failed, all ordered by parcel id.
func Render(w io.Writer, batch pipeline.BatchResult, opts domain.Options) error {
	v := view{
		Metric:      opts.Metric,
		MetricLabel: metricLabel(opts.Metric),
		Basis:       opts.Basis,
		Evaluated:   batch.FinishedAt.UTC().Format(time.RFC3339),
	}
	for _, id := range batch.ParcelIDs() {
		if err, failed := batch.Errors[id]; failed {
			v.Errors = append(v.Errors, errorView{ID: id, Error: err.Error()})
			continue
		}
		v.Statements = append(v.Statements, buildParcel(batch.Results[id], opts))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := statement.Execute(tw, v); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func buildParcel(res pipeline.ParcelResult, opts domain.Options) parcelView {
	p := res.Parcel
	pv := parcelView{
		ID:        p.ID,
		Name:      p.Name,
		Acres:     p.AreaAcres,
		HasArea:   p.AreaAcres > 0,
		Threshold: p.Threshold,
	}

	verdicts := make(map[string]domain.ComplianceVerdict, len(res.Verdicts))
	for _, v := range res.Verdicts {
		verdicts[v.PeriodID] = v
	}

	var totalAF float64
	for _, s := range res.Summaries {
		metric, ytd := s.Deficit, s.YearToDateDeficit
		if opts.Metric == domain.MetricDemand {
			metric, ytd = s.Demand, s.YearToDateDemand
		}

		row := rowView{
			PeriodID: s.Period.ID,
			Months:   months(s.Period),
			ET:       s.Evapotranspiration,
			P:        s.Precipitation,
			Pe:       s.EffectivePrecipitation,
			Metric:   metric,
			MetricAF: acreFeet(metric, p.AreaAcres),
			YTDAF:    acreFeet(ytd, p.AreaAcres),
			Verdict:  describe(verdicts[s.Period.ID]),
		}
		pv.Rows = append(pv.Rows, row)

		pv.Total.ET += row.ET
		pv.Total.P += row.P
		pv.Total.Pe += row.Pe
		pv.Total.Metric += row.Metric
		if row.MetricAF != nil {
			totalAF += *row.MetricAF
		}
	}
	if pv.HasArea {
		pv.Total.MetricAF = &totalAF
	}
	return pv
}

// acreFeet converts a depth in inches over the parcel area. It returns nil
// when the area is unknown.
func acreFeet(inches, acres float64) *float64 {
	if acres <= 0 {
		return nil
	}
	v := inches / 12 * acres
	return &v
}

func months(p domain.Period) string {
	return p.Start.Format("Jan") + "-" + p.End.Format("Jan 2006")
}

func metricLabel(m domain.Metric) string {
	if m == domain.MetricDemand {
		return "Demand"
	}
	return "Deficit"
}

func describe(v domain.ComplianceVerdict) string {
	switch v.Status {
	case domain.VerdictCompliant, domain.VerdictNonCompliant:
		return fmt.Sprintf("%s (%+.2f)", v.Status, v.Margin)
	case domain.VerdictIndeterminate:
		return fmt.Sprintf("%s (%.0f%% gaps)", v.Status, v.GapFraction*100)
	default:
		return "-"
	}
}

// FileWriter rewrites a report file after every batch.
// It implements pipeline.ReportWriter.
type FileWriter struct {
	path string
}

// NewFileWriter returns a FileWriter targeting path.
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

// WriteBatch renders the batch to a temporary file next to the target and
// renames it into place, so readers never see a partial report.
func (f *FileWriter) WriteBatch(batch pipeline.BatchResult, opts domain.Options) error {
	var buf bytes.Buffer
	if err := Render(&buf, batch, opts); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace report: %w", err)
	}
	return nil
}
