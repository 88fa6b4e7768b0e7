package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymetro/internal/model"
)

func TestNormalize_ClampsTempo(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"below range", 10, MinTempo},
		{"above range", 1000, MaxTempo},
		{"lower boundary", 30, 30},
		{"upper boundary", 300, 300},
		{"in range", 120, 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Normalize(nil, PartialConfig{Tempo: &tt.in}, DefaultOptions())
			assert.Equal(t, tt.want, cfg.Tempo)
		})
	}
}

func TestNormalize_DefaultsToOneAudibleBar(t *testing.T) {
	cfg := Normalize(nil, PartialConfig{}, DefaultOptions())
	require.Len(t, cfg.Bars, 1)
	bar := cfg.Bars[0]
	assert.Equal(t, 4, bar.Meter.N)
	assert.Equal(t, 4, bar.Meter.D)
	for _, s := range bar.Subdivisions {
		assert.Equal(t, 1, s)
	}
	for _, m := range bar.Masks {
		for _, audible := range m {
			assert.True(t, audible)
		}
	}
}

func TestNormalize_SubdivisionsOnlyAtD4(t *testing.T) {
	three := []int{1, 3, 1, 1}
	bars := []PartialBar{{Meter: model.Meter{N: 4, D: 8}, Subdivisions: three}}
	cfg := Normalize(nil, PartialConfig{Bars: bars}, DefaultOptions())
	for _, s := range cfg.Bars[0].Subdivisions {
		assert.Equal(t, 1, s, "non-d4 meters clear subdivisions to single-slot beats")
	}
}

func TestNormalize_SubdivisionsClampToHostMax(t *testing.T) {
	bars := []PartialBar{{Meter: model.Meter{N: 1, D: 4}, Subdivisions: []int{99}}}
	opts := Options{MaxSubdivision: 8}
	cfg := Normalize(nil, PartialConfig{Bars: bars}, opts)
	assert.Equal(t, 8, cfg.Bars[0].Subdivisions[0])
}

func TestNormalize_InvalidGroupsDroppedSilently(t *testing.T) {
	tests := []struct {
		name   string
		groups []int
		n      int
	}{
		{"wrong sum", []int{3, 3}, 4},
		{"size too small", []int{1, 3}, 4},
		{"size too large", []int{9}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := []PartialBar{{Meter: model.Meter{N: tt.n, D: 4}, Groups: tt.groups}}
			cfg := Normalize(nil, PartialConfig{Bars: bars}, DefaultOptions())
			assert.Nil(t, cfg.Bars[0].Groups)
		})
	}
}

func TestNormalize_PoolModeGroupsAcceptedAtD4(t *testing.T) {
	bars := []PartialBar{{
		Meter:        model.Meter{N: 4, D: 4},
		Subdivisions: []int{3, 3, 3, 3}, // pool = 12
		Groups:       []int{4, 4, 4},    // fails beat-mode (sum 12 != 4), passes pool-mode
	}}
	cfg := Normalize(nil, PartialConfig{Bars: bars}, DefaultOptions())
	assert.Equal(t, []int{4, 4, 4}, cfg.Bars[0].Groups)
}

func TestNormalize_Idempotent(t *testing.T) {
	bars := []PartialBar{
		{Meter: model.Meter{N: 11, D: 8}, Groups: []int{3, 3, 3, 2}},
	}
	tempo := 180
	once := Normalize(nil, PartialConfig{Tempo: &tempo, Bars: bars}, DefaultOptions())
	twice := Normalize(nil, ToPartial(once), DefaultOptions())
	assert.Equal(t, once, twice)
}

func TestNormalize_EqualFingerprintsForEqualContent(t *testing.T) {
	tempo := 120
	barsA := []PartialBar{{Meter: model.Meter{N: 4, D: 4}}}
	barsB := []PartialBar{{Meter: model.Meter{N: 4, D: 4}}}

	a := Normalize(nil, PartialConfig{Tempo: &tempo, Bars: barsA}, DefaultOptions())
	b := Normalize(nil, PartialConfig{Tempo: &tempo, Bars: barsB}, DefaultOptions())
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestNormalize_TempoEditChangesFingerprint(t *testing.T) {
	bars := []PartialBar{{Meter: model.Meter{N: 4, D: 4}}}
	t1, t2 := 100, 140
	a := Normalize(nil, PartialConfig{Tempo: &t1, Bars: bars}, DefaultOptions())
	b := Normalize(nil, PartialConfig{Tempo: &t2, Bars: bars}, DefaultOptions())
	assert.NotEqual(t, a.Fingerprint, b.Fingerprint, "tempo is part of the fingerprint")
}

func TestNormalize_MergesWithPreviousWhenFieldUnset(t *testing.T) {
	tempo := 90
	prev := Normalize(nil, PartialConfig{Tempo: &tempo}, DefaultOptions())
	loop := true
	updated := Normalize(&prev, PartialConfig{Loop: &loop}, DefaultOptions())
	assert.Equal(t, 90, updated.Tempo, "tempo carried over from previous config")
	assert.True(t, updated.Loop)
}

func TestNormalize_StartBarClampedToBarCount(t *testing.T) {
	start := 99
	bars := []PartialBar{{Meter: model.Meter{N: 4, D: 4}}, {Meter: model.Meter{N: 3, D: 4}}}
	cfg := Normalize(nil, PartialConfig{StartBar: &start, Bars: bars}, DefaultOptions())
	assert.Equal(t, 1, cfg.StartBar)
}
