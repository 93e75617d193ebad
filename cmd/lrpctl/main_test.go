package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/landrepurpose/lrp-smb/internal/adapter/sqlite"
	"github.com/landrepurpose/lrp-smb/internal/domain"
	"github.com/landrepurpose/lrp-smb/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mockDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	out, err := execute(t, "genmock", "--out", dir, "--parcels", "3", "--seed", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 3 parcels")
	return dir
}

func storeFlags(dir string) []string {
	return []string{
		"--registry", filepath.Join(dir, mockRegistry),
		"--precip", filepath.Join(dir, mockPrecip),
		"--et", filepath.Join(dir, mockET),
		"--field-key", filepath.Join(dir, mockFieldKey),
	}
}

func TestGenmock_Deterministic(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	_, err := execute(t, "genmock", "--out", a, "--seed", "3")
	require.NoError(t, err)
	_, err = execute(t, "genmock", "--out", b, "--seed", "3")
	require.NoError(t, err)

	for _, name := range []string{mockRegistry, mockPrecip, mockET, mockFieldKey} {
		x, err := os.ReadFile(filepath.Join(a, name))
		require.NoError(t, err)
		y, err := os.ReadFile(filepath.Join(b, name))
		require.NoError(t, err)
		assert.Equal(t, x, y, name)
	}

	parcels, err := registry.Load(filepath.Join(a, mockRegistry))
	require.NoError(t, err)
	assert.Len(t, parcels, 5)
	for _, p := range parcels {
		assert.NoError(t, p.Validate())
		assert.NotEmpty(t, p.Fields)
		assert.Positive(t, p.AreaAcres)
	}
}

func TestGenmock_RejectsBadRange(t *testing.T) {
	_, err := execute(t, "genmock", "--out", t.TempDir(), "--start", "2024-01-02", "--end", "2024-01-01")
	assert.ErrorContains(t, err, "before start")
}

func TestValidate_MockData(t *testing.T) {
	dir := mockDir(t)

	out, err := execute(t, append([]string{"validate"}, storeFlags(dir)...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "All validations passed.")
	assert.Contains(t, out, "Phase 3: Data Sufficiency")
}

func TestValidate_ReportsMissingExport(t *testing.T) {
	dir := mockDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, mockFieldKey), []byte("parcel_id,EKIfld\n"), 0o600))

	reg := filepath.Join(dir, "extra.yaml")
	require.NoError(t, os.WriteFile(reg, []byte("parcels:\n  - id: \"99999\"\n    capacity: 5\n    threshold: 1\n"), 0o600))

	args := append([]string{"validate"}, storeFlags(dir)...)
	args = append(args, "--registry", reg)
	out, err := execute(t, args...)
	require.Error(t, err)
	assert.Contains(t, out, "Validation FAILED.")
	assert.Contains(t, out, "parcel 99999")
}

func TestEvaluate_TextAndJSON(t *testing.T) {
	dir := mockDir(t)

	out, err := execute(t, append([]string{"evaluate", "--scheme", "water-year-quarter"}, storeFlags(dir)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "QUARTERLY CONSUMPTIVE WATER USE STATEMENT")
	assert.Contains(t, out, "WY2023-Q1")
	assert.Contains(t, out, "Oct-Dec 2022")

	out, err = execute(t, append([]string{"evaluate", "--format", "json", "--parcel", "00002"}, storeFlags(dir)...)...)
	require.NoError(t, err)

	var parcels []struct {
		ParcelID string                     `json:"parcel_id"`
		Verdicts []domain.ComplianceVerdict `json:"verdicts"`
		States   []domain.BalanceState      `json:"states"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parcels))
	require.Len(t, parcels, 1)
	assert.Equal(t, "00002", parcels[0].ParcelID)
	assert.Len(t, parcels[0].Verdicts, 4, "one verdict per calendar quarter of the water year")
	assert.Empty(t, parcels[0].States)
}

func TestEvaluate_UnknownParcelFails(t *testing.T) {
	dir := mockDir(t)

	out, err := execute(t, append([]string{"evaluate", "--parcel", "00001", "--parcel", "nope"}, storeFlags(dir)...)...)
	require.ErrorContains(t, err, "1 of 2 parcels")
	assert.Contains(t, out, "PARCELS NOT EVALUATED")
}

func TestEvaluate_BadOptions(t *testing.T) {
	dir := mockDir(t)

	_, err := execute(t, append([]string{"evaluate", "--gap-policy", "guess"}, storeFlags(dir)...)...)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEvaluate_ConfigFileAndEnv(t *testing.T) {
	dir := mockDir(t)
	cfg := filepath.Join(dir, "lrpctl.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("metric: demand\nscheme: water-year-quarter\n"), 0o600))
	t.Setenv("LRP_BASIS", "year-to-date")

	out, err := execute(t, append([]string{"evaluate", "--config", cfg}, storeFlags(dir)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Demand (in)")
	assert.Contains(t, out, "(demand, year-to-date)")
	assert.Contains(t, out, "WY2023-Q4")
}

func TestImportThenEvaluateFromSQLite(t *testing.T) {
	dir := mockDir(t)
	db := filepath.Join(dir, "lrp.db")

	out, err := execute(t, append([]string{"validate", "--import", db}, storeFlags(dir)...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Phase 4: Import (SQLite)")

	args := []string{"evaluate", "--backend", "sqlite", "--sqlite", db, "--history", "--format", "json",
		"--registry", filepath.Join(dir, mockRegistry)}
	out, err = execute(t, args...)
	require.NoError(t, err, out)

	store, err := sqlite.Open(db, time.Time{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer store.Close()

	history, err := store.VerdictHistory(context.Background(), "00001")
	require.NoError(t, err)
	assert.Len(t, history, 4)

	_, err = execute(t, "evaluate", "--history", "--registry", filepath.Join(dir, mockRegistry),
		"--precip", filepath.Join(dir, mockPrecip), "--et", filepath.Join(dir, mockET))
	assert.ErrorContains(t, err, "sqlite backend")
}
