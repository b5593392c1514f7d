package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	tests := map[string]string{
		"rfc3339":     "2024-10-10T10:10:10Z",
		"with offset": "2024-10-10T12:10:10+02:00",
		"unix":        strconv.FormatInt(want.Unix(), 10),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			got, ok := ParseTime(in)
			require.True(t, ok)
			assert.True(t, got.Equal(want))
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	got, ok := ParseTime("2024-10-10")
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)))

	_, ok = ParseTime("last tuesday")
	assert.False(t, ok)
}

func TestFloorAndBucketCount(t *testing.T) {
	from := time.Date(2024, 1, 1, 10, 47, 0, 0, time.UTC)
	to := time.Date(2024, 1, 1, 13, 5, 0, 0, time.UTC)

	f, tt := FloorTime(from, time.Hour), FloorTime(to, time.Hour)
	assert.True(t, f.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)))
	assert.True(t, tt.Equal(time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)))
	assert.Equal(t, 4, BucketCount(f, tt, time.Hour))
	assert.Zero(t, BucketCount(tt, f, time.Hour))
}

func TestFloorTimeBeforeEpoch(t *testing.T) {
	assert.True(t, FloorTime(time.Unix(-1, 0), time.Minute).Equal(time.Unix(-60, 0)))
}
