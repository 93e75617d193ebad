package registry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/landrepurpose/lrp-smb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
parcels:
  - id: "00002"
    name: Westside fallow
    capacity: 16
    threshold: 3.5
    area_acres: 80.5
    fields: ["41", "42"]
    enrollment:
      start: 2023-10-01
  - id: "00001"
    capacity: 12
    initial_storage: 0
    threshold: 2
    enrollment:
      start: 2023-10-01
      end: 2024-09-30
`

func TestDecode(t *testing.T) {
	parcels, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, parcels, 2)

	assert.Equal(t, "00001", parcels[0].ID, "sorted by id")
	require.NotNil(t, parcels[0].InitialStorage)
	assert.Zero(t, *parcels[0].InitialStorage)
	assert.Equal(t, time.Date(2024, time.September, 30, 0, 0, 0, 0, time.UTC), parcels[0].Enrollment.End)

	p := parcels[1]
	assert.Equal(t, "Westside fallow", p.Name)
	assert.Equal(t, 16.0, p.Capacity)
	assert.Equal(t, 3.5, p.Threshold)
	assert.Equal(t, 80.5, p.AreaAcres)
	assert.Equal(t, []string{"41", "42"}, p.Fields)
	assert.Nil(t, p.InitialStorage)
	assert.True(t, p.Enrollment.End.IsZero(), "open-ended enrollment")
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	doc := `
parcels:
  - id: "00001"
    capacity: 12
    treshold: 2
`
	_, err := Decode(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "treshold")
}

func TestDecode_Errors(t *testing.T) {
	tests := map[string]string{
		"missing id":     "parcels:\n  - capacity: 1\n",
		"duplicate id":   "parcels:\n  - id: a\n  - id: a\n",
		"bad date":       "parcels:\n  - id: a\n    enrollment:\n      start: 10/01/2023\n",
		"inverted range": "parcels:\n  - id: a\n    enrollment:\n      start: 2024-01-01\n      end: 2023-01-01\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	parcels, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, parcels)
}

func TestEncodeDecode(t *testing.T) {
	parcels, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, parcels))

	again, err := Decode(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(parcels, again); diff != "" {
		t.Fatalf("registry changed after encode (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parcels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	parcels, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, parcels, 2)

	viaFile, err := File(path).Parcels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, parcels, viaFile)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParcelsAreDomainValues(t *testing.T) {
	parcels, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	opts := domain.DefaultOptions()
	assert.Equal(t, 0.0, parcels[0].StartingStorage(opts))
	assert.Equal(t, 16.0, parcels[1].StartingStorage(opts))
}
