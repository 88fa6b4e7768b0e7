// Package config normalizes caller-supplied partial updates into a
// canonical, fully-clamped model.EngineConfig and computes the content
// fingerprint the facade uses to deduplicate logically identical updates.
package config

import (
	"hash/fnv"
	"strconv"

	"polymetro/internal/model"
	"polymetro/internal/rhythm"
)

const (
	MinTempo = 30
	MaxTempo = 300

	minN = 1
	maxN = 64

	defaultTempo = 120
)

var validDenominators = []int{1, 2, 4, 8, 16, 32, 64}

// Options tunes normalizer behavior per host.
type Options struct {
	// MaxSubdivision caps per-beat subdivision counts. The engine's own
	// cap is 16; a host may further clamp to 8.
	MaxSubdivision int
}

// DefaultOptions returns the engine's own caps (no further host clamp).
func DefaultOptions() Options {
	return Options{MaxSubdivision: 16}
}

// PartialBar is an optional-field description of one bar in an update.
// A nil Subdivisions/Masks/Groups means "use defaults", not "clear".
type PartialBar struct {
	Meter        model.Meter
	Groups       []int
	Subdivisions []int
	Masks        [][]bool
}

// PartialConfig is a partial update: any subset of its fields may be set.
// A nil pointer/slice means "leave as in the previous config" (or default,
// if there is no previous config).
type PartialConfig struct {
	Tempo     *int
	Bars      []PartialBar // nil => keep previous bars
	StartBar  *int
	Loop      *bool
	BeatGuide *bool
	ApplyAt   *model.ApplyBoundary
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nearestValidDenominator(d int) int {
	if d < 1 {
		return 1
	}
	best := validDenominators[0]
	bestDist := abs(d - best)
	for _, v := range validDenominators[1:] {
		if dist := abs(d - v); dist < bestDist {
			best, bestDist = v, dist
		}
	}
	return best
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Normalize folds a partial update over prev (nil for "no prior config")
// and produces a complete canonical EngineConfig with its fingerprint set.
// Normalize(Normalize(x)) == Normalize(x): feeding a normalized config's
// own fields back in as a partial update reproduces it exactly.
func Normalize(prev *model.EngineConfig, partial PartialConfig, opts Options) model.EngineConfig {
	out := model.EngineConfig{}

	if partial.Tempo != nil {
		out.Tempo = clampInt(*partial.Tempo, MinTempo, MaxTempo)
	} else if prev != nil {
		out.Tempo = prev.Tempo
	} else {
		out.Tempo = defaultTempo
	}

	switch {
	case partial.Bars != nil:
		out.Bars = make([]model.Bar, len(partial.Bars))
		for i, pb := range partial.Bars {
			out.Bars[i] = normalizeBar(pb, opts)
		}
	case prev != nil:
		out.Bars = make([]model.Bar, len(prev.Bars))
		for i, b := range prev.Bars {
			out.Bars[i] = b.Clone()
		}
	default:
		out.Bars = []model.Bar{defaultBar()}
	}
	if len(out.Bars) == 0 {
		out.Bars = []model.Bar{defaultBar()}
	}

	if partial.StartBar != nil {
		out.StartBar = clampInt(*partial.StartBar, 0, len(out.Bars)-1)
	} else if prev != nil {
		out.StartBar = clampInt(prev.StartBar, 0, len(out.Bars)-1)
	}

	if partial.Loop != nil {
		out.Loop = *partial.Loop
	} else if prev != nil {
		out.Loop = prev.Loop
	}

	if partial.BeatGuide != nil {
		out.BeatGuide = *partial.BeatGuide
	} else if prev != nil {
		out.BeatGuide = prev.BeatGuide
	}

	if partial.ApplyAt != nil {
		out.ApplyAt = *partial.ApplyAt
	} else if prev != nil {
		out.ApplyAt = prev.ApplyAt
	} else {
		out.ApplyAt = model.NextBar
	}

	out.Fingerprint = Fingerprint(out)
	return out
}

func defaultBar() model.Bar {
	meter := model.Meter{N: 4, D: 4}
	return normalizeBar(PartialBar{Meter: meter}, DefaultOptions())
}

func normalizeBar(pb PartialBar, opts Options) model.Bar {
	meter := pb.Meter
	if meter.N == 0 {
		meter.N = 4
	}
	meter.N = clampInt(meter.N, minN, maxN)
	if meter.D == 0 {
		meter.D = 4
	}
	meter.D = nearestValidDenominator(meter.D)

	maxSub := opts.MaxSubdivision
	if maxSub <= 0 {
		maxSub = 16
	}

	bar := model.Bar{Meter: meter}

	// Per-beat subdivision data is only meaningful at d=4; other
	// denominators clear it to single-slot beats.
	if meter.D == 4 && pb.Subdivisions != nil {
		subs := make([]int, meter.N)
		for i := 0; i < meter.N; i++ {
			v := 1
			if i < len(pb.Subdivisions) {
				v = pb.Subdivisions[i]
			}
			subs[i] = clampInt(v, 1, maxSub)
		}
		bar.Subdivisions = subs
	} else {
		subs := make([]int, meter.N)
		for i := range subs {
			subs[i] = 1
		}
		bar.Subdivisions = subs
	}

	bar.Masks = make([][]bool, meter.N)
	for i := 0; i < meter.N; i++ {
		want := bar.Subdivisions[i]
		var src []bool
		if meter.D == 4 && i < len(pb.Masks) {
			src = pb.Masks[i]
		}
		mask := make([]bool, want)
		for k := 0; k < want; k++ {
			if k < len(src) {
				mask[k] = src[k]
			} else {
				mask[k] = true // unspecified masks default to all-audible
			}
		}
		bar.Masks[i] = mask
	}

	if poolMode, ok := rhythm.ValidateGroups(pb.Groups, meter, bar.Subdivisions); ok {
		_ = poolMode
		bar.Groups = append([]int(nil), pb.Groups...)
	} else {
		bar.Groups = nil
	}

	return bar
}

// ToPartial converts a canonical config back into a partial update with
// every field set, for round-trip / idempotence checks and for re-applying
// an exact snapshot as an update.
func ToPartial(c model.EngineConfig) PartialConfig {
	bars := make([]PartialBar, len(c.Bars))
	for i, b := range c.Bars {
		bars[i] = PartialBar{
			Meter:        b.Meter,
			Groups:       append([]int(nil), b.Groups...),
			Subdivisions: append([]int(nil), b.Subdivisions...),
			Masks:        make([][]bool, len(b.Masks)),
		}
		for k, m := range b.Masks {
			bars[i].Masks[k] = append([]bool(nil), m...)
		}
	}
	tempo := c.Tempo
	startBar := c.StartBar
	loop := c.Loop
	beatGuide := c.BeatGuide
	applyAt := c.ApplyAt
	return PartialConfig{
		Tempo:     &tempo,
		Bars:      bars,
		StartBar:  &startBar,
		Loop:      &loop,
		BeatGuide: &beatGuide,
		ApplyAt:   &applyAt,
	}
}

// Fingerprint hashes the materially-observable parts of a config: tempo,
// per-bar (n,d), groups, subdivisions, masks, beat-guide and loop. Two
// logically-equal updates produce equal fingerprints. StartBar and
// ApplyAt are deliberately excluded: they steer *when*/*where* playback
// starts, not what the bars sound like.
func Fingerprint(c model.EngineConfig) uint64 {
	h := fnv.New64a()
	write := func(s string) { h.Write([]byte(s)); h.Write([]byte{0}) }

	write(strconv.Itoa(c.Tempo))
	write(boolStr(c.Loop))
	write(boolStr(c.BeatGuide))
	write(strconv.Itoa(len(c.Bars)))
	for _, b := range c.Bars {
		write(strconv.Itoa(b.Meter.N))
		write(strconv.Itoa(b.Meter.D))
		for _, g := range b.Groups {
			write("g" + strconv.Itoa(g))
		}
		for i, s := range b.Subdivisions {
			write("s" + strconv.Itoa(s))
			for _, audible := range b.Masks[i] {
				write(boolStr(audible))
			}
		}
	}
	return h.Sum64()
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
