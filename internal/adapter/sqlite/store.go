// Package sqlite keeps parcel observations and the verdict history in a
// SQLite database through gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/landrepurpose/lrp-smb/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNoData is returned when a parcel has no stored observations.
var ErrNoData = errors.New("no observations for parcel")

const upsertBatchSize = 500

// observationRow is unique on (parcel_id, date).
type observationRow struct {
	ParcelID           string    `gorm:"primaryKey;size:64"`
	Date               time.Time `gorm:"primaryKey"`
	Precipitation      float64
	Evapotranspiration float64
	Status             string `gorm:"size:16"`
}

func (observationRow) TableName() string { return "observations" }

type verdictRow struct {
	ID          uint      `gorm:"primaryKey"`
	ParcelID    string    `gorm:"size:64;uniqueIndex:idx_verdict_key;index"`
	PeriodID    string    `gorm:"size:16;uniqueIndex:idx_verdict_key"`
	EvaluatedAt time.Time `gorm:"uniqueIndex:idx_verdict_key"`
	Status      string    `gorm:"size:16;index"`
	Margin      float64
	Reasons     string
	Metric      string `gorm:"size:16"`
	Basis       string `gorm:"size:16"`
	Value       float64
	Threshold   float64
	GapFraction float64
}

func (verdictRow) TableName() string { return "verdicts" }

// Store is the gorm-backed observation store and verdict sink.
type Store struct {
	db      *gorm.DB
	endDate time.Time
	logger  *slog.Logger
}

// Open opens (creating if needed) the database at path and migrates it.
// Observations dated after a non-zero endDate are never returned.
func Open(path string, endDate time.Time, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newGormLogger(logger)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.AutoMigrate(&observationRow{}, &verdictRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite database: %w", err)
	}
	logger.Info("sqlite store opened", "path", path)
	return &Store{db: db, endDate: endDate, logger: logger}, nil
}

func newGormLogger(logger *slog.Logger) gormlogger.Interface {
	return gormlogger.New(
		slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveObservations upserts records; a later import of the same (parcel, date)
// replaces the earlier values.
func (s *Store) SaveObservations(ctx context.Context, records []domain.ObservationRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]observationRow, len(records))
	for i, r := range records {
		status := r.Status
		if status == "" {
			status = domain.StatusValid
		}
		rows[i] = observationRow{
			ParcelID:           r.ParcelID,
			Date:               domain.Day(r.Date),
			Precipitation:      r.Precipitation,
			Evapotranspiration: r.Evapotranspiration,
			Status:             string(status),
		}
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "parcel_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"precipitation", "evapotranspiration", "status"}),
	}).CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("upsert observations: %w", err)
	}
	return nil
}

// Observations returns the parcel's stored series in date order.
func (s *Store) Observations(ctx context.Context, p domain.Parcel) ([]domain.ObservationRecord, error) {
	parcelID := p.ID
	q := s.db.WithContext(ctx).Where("parcel_id = ?", parcelID)
	if !s.endDate.IsZero() {
		q = q.Where("date <= ?", domain.Day(s.endDate))
	}

	var rows []observationRow
	if err := q.Order("date").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoData, parcelID)
	}

	out := make([]domain.ObservationRecord, len(rows))
	for i, r := range rows {
		out[i] = domain.ObservationRecord{
			ParcelID:           r.ParcelID,
			Date:               r.Date.UTC(),
			Precipitation:      r.Precipitation,
			Evapotranspiration: r.Evapotranspiration,
			Status:             domain.ObservationStatus(r.Status),
		}
	}
	return out, nil
}

// LoadBatch appends verdicts to the history. Re-publishing a verdict with the
// same (parcel, period, evaluated_at) is a no-op.
func (s *Store) LoadBatch(ctx context.Context, verdicts []domain.ComplianceVerdict) error {
	if len(verdicts) == 0 {
		return nil
	}
	rows := make([]verdictRow, len(verdicts))
	for i, v := range verdicts {
		rows[i] = toVerdictRow(v)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("insert verdicts: %w", err)
	}
	return nil
}

// Name identifies the sink in logs and metrics.
func (s *Store) Name() string { return "sqlite" }

// VerdictHistory returns every stored verdict for a parcel, oldest evaluation
// first and periods in order within an evaluation.
func (s *Store) VerdictHistory(ctx context.Context, parcelID string) ([]domain.ComplianceVerdict, error) {
	var rows []verdictRow
	err := s.db.WithContext(ctx).
		Where("parcel_id = ?", parcelID).
		Order("evaluated_at, period_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}

	out := make([]domain.ComplianceVerdict, len(rows))
	for i, r := range rows {
		out[i] = r.toVerdict()
	}
	return out, nil
}

func toVerdictRow(v domain.ComplianceVerdict) verdictRow {
	reasons := make([]string, len(v.Reasons))
	for i, r := range v.Reasons {
		reasons[i] = string(r)
	}
	return verdictRow{
		ParcelID:    v.ParcelID,
		PeriodID:    v.PeriodID,
		EvaluatedAt: v.EvaluatedAt.UTC(),
		Status:      string(v.Status),
		Margin:      v.Margin,
		Reasons:     strings.Join(reasons, ","),
		Metric:      string(v.Metric),
		Basis:       string(v.Basis),
		Value:       v.Value,
		Threshold:   v.Threshold,
		GapFraction: v.GapFraction,
	}
}

func (r verdictRow) toVerdict() domain.ComplianceVerdict {
	var reasons []domain.ReasonCode
	for _, s := range strings.Split(r.Reasons, ",") {
		if s != "" {
			reasons = append(reasons, domain.ReasonCode(s))
		}
	}
	return domain.ComplianceVerdict{
		ParcelID:    r.ParcelID,
		PeriodID:    r.PeriodID,
		Status:      domain.VerdictStatus(r.Status),
		Margin:      r.Margin,
		Reasons:     reasons,
		Metric:      domain.Metric(r.Metric),
		Basis:       domain.Basis(r.Basis),
		Value:       r.Value,
		Threshold:   r.Threshold,
		GapFraction: r.GapFraction,
		EvaluatedAt: r.EvaluatedAt.UTC(),
	}
}
