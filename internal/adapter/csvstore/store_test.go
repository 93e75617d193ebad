package csvstore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/landrepurpose/lrp-smb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const precipCSV = `time,EKIfld,acres,acre-feet
2023-10-01,41,60,0.5
2023-10-01,42,40,1.0
2023-11-01,41,60,n/a
2023-11-01,42,40,0.2
2023-12-01,41,60,0
2023-12-01,42,40,0
2024-01-01,41,60,3
`

const etCSV = `time,EKIfld,acres,acre-feet
2023-10-01,41,60,1.5
2023-10-01,42,40,1.0
2023-11-01,41,60,1
2023-11-01,42,40,1
2023-12-01,41,60,0.6
2023-12-01,42,40,0.4
`

const keyCSV = `concat_appl_ID,EKIfld,LRP_Yr
00001,41,Yr1
00001,42,Yr1
00002,99,Yr1
`

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newStore(t *testing.T, endDate time.Time) *Store {
	t.Helper()
	s, err := New(strings.NewReader(precipCSV), strings.NewReader(etCSV), strings.NewReader(keyCSV), "EKIfld", endDate)
	require.NoError(t, err)
	return s
}

func TestObservations_AreaWeighted(t *testing.T) {
	s := newStore(t, time.Time{})

	recs, err := s.Observations(context.Background(), domain.Parcel{ID: "00001"})
	require.NoError(t, err)
	require.Len(t, recs, 4)

	oct := recs[0]
	assert.Equal(t, day(2023, time.October, 1), oct.Date)
	assert.Equal(t, domain.StatusValid, oct.Status)
	assert.InDelta(t, 1.5*12/100, oct.Precipitation, 1e-12)
	assert.InDelta(t, 2.5*12/100, oct.Evapotranspiration, 1e-12)
	assert.Equal(t, "00001", oct.ParcelID)

	assert.Equal(t, domain.StatusInvalid, recs[1].Status, "unparsable acre-feet")
	assert.Zero(t, recs[1].Precipitation)

	assert.Equal(t, domain.StatusValid, recs[2].Status)
	assert.Zero(t, recs[2].Precipitation)
	assert.InDelta(t, 0.12, recs[2].Evapotranspiration, 1e-12)

	assert.Equal(t, day(2024, time.January, 1), recs[3].Date)
	assert.Equal(t, domain.StatusMissing, recs[3].Status, "no ET for the date")
}

func TestObservations_ParcelFieldsOverrideKey(t *testing.T) {
	s := newStore(t, time.Time{})

	recs, err := s.Observations(context.Background(), domain.Parcel{ID: "00001", Fields: []string{"42"}})
	require.NoError(t, err)
	assert.InDelta(t, 1.0*12/40, recs[0].Precipitation, 1e-12)
}

func TestObservations_EndDate(t *testing.T) {
	s := newStore(t, day(2023, time.November, 30))

	recs, err := s.Observations(context.Background(), domain.Parcel{ID: "00001"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, day(2023, time.November, 1), recs[1].Date)
}

func TestObservations_NoData(t *testing.T) {
	s := newStore(t, time.Time{})

	_, err := s.Observations(context.Background(), domain.Parcel{ID: "00002"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoData))

	_, err = s.Observations(context.Background(), domain.Parcel{ID: "unknown"})
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestObservations_CancelledContext(t *testing.T) {
	s := newStore(t, time.Time{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Observations(ctx, domain.Parcel{ID: "00001"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_MissingColumn(t *testing.T) {
	_, err := New(strings.NewReader("time,field,acres,acre-feet\n"), strings.NewReader(etCSV), nil, "EKIfld", time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EKIfld")
}

func TestNew_BadTime(t *testing.T) {
	bad := "time,EKIfld,acres,acre-feet\nyesterday,41,1,1\n"
	_, err := New(strings.NewReader(bad), strings.NewReader(etCSV), nil, "EKIfld", time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestOpen_RoundTripsExports(t *testing.T) {
	dir := t.TempDir()
	parcels := []domain.Parcel{{ID: "00007", Fields: []string{"7a", "7b"}}}

	write := func(name string, fn func(*bytes.Buffer) error) string {
		var buf bytes.Buffer
		require.NoError(t, fn(&buf))
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
		return path
	}

	rows := []Row{
		{Date: "2024-01-01", Field: "7a", Acres: 10, AcreFeet: 0.5},
		{Date: "2024-01-01", Field: "7b", Acres: 30, AcreFeet: 0.5},
	}
	cfg := Config{
		PrecipPath:     write("pp.csv", func(b *bytes.Buffer) error { return WriteVariable(b, "fid", rows) }),
		ETPath:         write("et.csv", func(b *bytes.Buffer) error { return WriteVariable(b, "fid", rows) }),
		FieldKeyPath:   write("key.csv", func(b *bytes.Buffer) error { return WriteFieldKey(b, "fid", parcels) }),
		FieldAttribute: "fid",
	}

	s, err := Open(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"7a", "7b"}, s.Fields(domain.Parcel{ID: "00007"}))

	recs, err := s.Observations(context.Background(), domain.Parcel{ID: "00007"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.InDelta(t, 0.3, recs[0].Precipitation, 1e-12)

	_, err = Open(Config{PrecipPath: filepath.Join(dir, "absent.csv")})
	require.Error(t, err)
}
