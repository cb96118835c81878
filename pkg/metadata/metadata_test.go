package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     Parsed
		ok       bool
	}{
		{"compact underscore", "20240712_143000.mp4", Parsed{"2024-07-12", "14:30:00"}, true},
		{"compact T", "VID20240712T143000.mov", Parsed{"2024-07-12", "14:30:00"}, true},
		{"compact dash with prefix", "entrance-20231231-235959.mp4", Parsed{"2023-12-31", "23:59:59"}, true},
		{"dashed", "2024-07-12_14-30-05.mp4", Parsed{"2024-07-12", "14:30:05"}, true},
		{"dashed iso", "clip 2024-02-29T08:15:00.webm", Parsed{"2024-02-29", "08:15:00"}, true},
		{"dashed dots", "2024-07-12 09.05.07.mp4", Parsed{"2024-07-12", "09:05:07"}, true},
		{"loose without seconds", "museum 2024.7.3 9.05.mp4", Parsed{"2024-07-03", "09:05:00"}, true},
		{"loose with seconds", "cam1 2024_07_12 14_30_05.mp4", Parsed{"2024-07-12", "14:30:05"}, true},
		{"loose without extension", "2024.7.3 9.05", Parsed{"2024-07-03", "09:05:00"}, true},
		{"loose with letters", "2024y07m12d14h30m05s.mp4", Parsed{"2024-07-12", "14:30:05"}, true},
		{"inside a longer digit run", "120240712_143000.mp4", Parsed{}, false},
		{"month 13", "20241312_143000.mp4", Parsed{}, false},
		{"feb 30", "2023-02-30_10-00-00.mp4", Parsed{}, false},
		{"not a leap year", "20230229_100000.mp4", Parsed{}, false},
		{"hour 24", "20240712_243000.mp4", Parsed{}, false},
		{"minute 60", "2024-07-12_14-60-00.mp4", Parsed{}, false},
		{"no digits", "entrance.mp4", Parsed{}, false},
		{"date only", "2024-07-12.mp4", Parsed{}, false},
		{"empty", "", Parsed{}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseFilename(tc.filename)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseFilenameFallsThroughInvalidMatch(t *testing.T) {
	// The compact run is not a real date, the dashed one is.
	got, ok := ParseFilename("20241399_000000 2024-01-01_00-00-01.mp4")
	require.True(t, ok)
	assert.Equal(t, Parsed{"2024-01-01", "00:00:01"}, got)

	// Same pattern twice, separated by a single underscore.
	got, ok = ParseFilename("20241312_000000_20240712_143000.mp4")
	require.True(t, ok)
	assert.Equal(t, Parsed{"2024-07-12", "14:30:00"}, got)

	got, ok = ParseFilename("2024-13-01_10-00-00_2024-07-12_14-30-00.mp4")
	require.True(t, ok)
	assert.Equal(t, Parsed{"2024-07-12", "14:30:00"}, got)
}

func TestParsedIn(t *testing.T) {
	loc := time.FixedZone("JST", 9*60*60)
	got, err := Parsed{"2024-07-12", "14:30:00"}.In(loc)
	require.NoError(t, err)
	assert.Equal(t, "2024-07-12T14:30:00+09:00", got.Format(time.RFC3339))
}

func TestResolve(t *testing.T) {
	loc := time.UTC
	fallback := time.Date(2020, 1, 2, 3, 4, 5, 0, loc)

	got := Resolve("20240712_143000.mp4", &fallback, loc)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2024, 7, 12, 14, 30, 0, 0, loc), *got)

	got = Resolve("entrance.mp4", &fallback, loc)
	require.NotNil(t, got)
	assert.Equal(t, fallback, *got)

	assert.Nil(t, Resolve("entrance.mp4", nil, loc))
}

func TestParseDateTime(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)

	got, err := ParseDateTime("2024-07-12", "14:30", loc)
	require.NoError(t, err)
	assert.Equal(t, "2024-07-12T14:30:00+02:00", got.Format(time.RFC3339))

	got, err = ParseDateTime("2024-07-12", "14:30:15", loc)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Second())

	_, err = ParseDateTime("2024-02-30", "10:00", loc)
	assert.Error(t, err)

	_, err = ParseDateTime("2024-07-12", "25:00", loc)
	assert.Error(t, err)

	_, err = ParseDateTime("12/07/2024", "10:00", loc)
	assert.Error(t, err)
}
