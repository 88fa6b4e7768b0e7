// Package rhythm implements the pure, side-effect-free accent and
// subdivision math shared by the schedulers: accent derivation, group
// validation, subset-sum reachability for the UI, and beat-guide masking.
// Nothing here touches time, audio, or shared state.
package rhythm

import (
	"log/slog"

	"polymetro/internal/model"
)

const (
	MinGroupSize = 2
	MaxGroupSize = 8
)

// DeriveAccents returns the accent vector for a meter and an optional
// group partition. ticksPerBar defaults to meter.N when 0. Tick 0 is
// always BarStrong. Invalid groups fall back to the no-groups path and
// log a diagnostic; they never panic.
func DeriveAccents(meter model.Meter, groups []int, ticksPerBar int) []model.AccentLevel {
	if ticksPerBar == 0 {
		ticksPerBar = meter.N
	}
	if ticksPerBar <= 0 {
		return []model.AccentLevel{}
	}

	accents := make([]model.AccentLevel, ticksPerBar)
	for i := range accents {
		accents[i] = model.SubdivWeak
	}
	accents[0] = model.BarStrong

	if len(groups) > 0 {
		if ValidGroupSum(groups, ticksPerBar) && ValidGroupSizes(groups) {
			markGroupStarts(accents, groups)
			return accents
		}
		slog.Warn("rhythm: dropping invalid group partition, falling back to defaults",
			"groups", groups, "ticksPerBar", ticksPerBar)
	}

	// Default compound behavior: d=8 meters with 6/9/12 beats mark every
	// third tick as the start of a group of three.
	if meter.D == 8 && (meter.N == 6 || meter.N == 9 || meter.N == 12) {
		markGroupStarts(accents, repeatedGroupsOf(3, ticksPerBar))
	}

	return accents
}

func repeatedGroupsOf(size, total int) []int {
	n := total / size
	groups := make([]int, 0, n)
	for i := 0; i < n; i++ {
		groups = append(groups, size)
	}
	return groups
}

func markGroupStarts(accents []model.AccentLevel, groups []int) {
	n := len(accents)
	cursor := 0
	for gi, g := range groups {
		if gi > 0 {
			idx := cursor % n
			if idx != 0 {
				accents[idx] = model.GroupMedium
			}
		}
		cursor += g
	}
}

// ValidGroupSum reports whether groups sum to target.
func ValidGroupSum(groups []int, target int) bool {
	sum := 0
	for _, g := range groups {
		sum += g
	}
	return sum == target
}

// ValidGroupSizes reports whether every group size lies in [MinGroupSize, MaxGroupSize].
func ValidGroupSizes(groups []int) bool {
	for _, g := range groups {
		if g < MinGroupSize || g > MaxGroupSize {
			return false
		}
	}
	return true
}

// ValidateGroups classifies a group partition against a bar: beat-mode
// (sum equals meter.N) or pool-mode (sum equals the flattened sub-tick
// count, only legal when meter.D == 4). Returns ok=false when neither
// matches or a size is out of range — callers must drop the partition.
func ValidateGroups(groups []int, meter model.Meter, subdivisions []int) (poolMode bool, ok bool) {
	if len(groups) == 0 || !ValidGroupSizes(groups) {
		return false, false
	}
	if ValidGroupSum(groups, meter.N) {
		return false, true
	}
	if meter.D == 4 && ValidGroupSum(groups, PoolTicks(meter, subdivisions)) {
		return true, true
	}
	return false, false
}

// PoolTicks is the flattened sub-tick count of a bar: Σ subdivisions when
// D==4 (the only denominator where per-beat subdivision data is kept),
// otherwise just meter.N.
func PoolTicks(meter model.Meter, subdivisions []int) int {
	if meter.D != 4 {
		return meter.N
	}
	sum := 0
	for _, s := range subdivisions {
		sum += s
	}
	return sum
}

// CanFill computes, for every total in [0, total], whether it is
// reachable as a sum of (possibly repeated) elements of allowedSizes.
// Deterministic, O(total * len(allowedSizes)).
func CanFill(total int, allowedSizes []int) []bool {
	reachable := make([]bool, total+1)
	reachable[0] = true
	for t := 1; t <= total; t++ {
		for _, s := range allowedSizes {
			if s <= 0 || s > t {
				continue
			}
			if reachable[t-s] {
				reachable[t] = true
				break
			}
		}
	}
	return reachable
}

// MaskWithBeatGuide returns a copy of mask with index 0 forced audible
// when enabled. The input is never mutated.
func MaskWithBeatGuide(mask []bool, enabled bool) []bool {
	out := append([]bool(nil), mask...)
	if enabled && len(out) > 0 {
		out[0] = true
	}
	return out
}

// Glyphs renders an accent vector using the notation from the spec's
// literal scenarios: 'F' for BarStrong, 'm' for GroupMedium, 'x' for
// SubdivWeak, space-separated.
func Glyphs(accents []model.AccentLevel) string {
	out := make([]byte, 0, len(accents)*2)
	for i, a := range accents {
		if i > 0 {
			out = append(out, ' ')
		}
		switch a {
		case model.BarStrong:
			out = append(out, 'F')
		case model.GroupMedium:
			out = append(out, 'm')
		default:
			out = append(out, 'x')
		}
	}
	return string(out)
}
