// Package timeline holds the bar/beat cursor and apply-boundary commit
// logic shared by the pull scheduler and the push synthesizer: the one
// piece of state both scheduling disciplines advance the same way.
package timeline

import (
	"polymetro/internal/model"
	"polymetro/internal/rhythm"
)

// BarCache is the per-bar derived state recomputed whenever the active
// bar or config changes: its accent vector, whether that vector is
// pool-indexed, and the active seconds-per-beat.
type BarCache struct {
	Accents        []model.AccentLevel
	PoolMode       bool
	PoolTicks      int
	SecondsPerBeat float64
}

type pendingUpdate struct {
	config   model.EngineConfig
	boundary model.ApplyBoundary
}

// Machine is the timeline state machine: active config, bar index, beat
// cursor, and any update awaiting its apply boundary.
type Machine struct {
	cfg     model.EngineConfig
	BarIndex int
	Beat     int
	cache    BarCache
	pending  *pendingUpdate
}

// NewMachine builds a machine positioned at cfg.StartBar, beat 0.
func NewMachine(cfg model.EngineConfig) *Machine {
	m := &Machine{cfg: cfg}
	m.BarIndex = clampInt(cfg.StartBar, 0, len(cfg.Bars)-1)
	m.recomputeBarCache()
	return m
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Config returns the currently active config (read-only view).
func (m *Machine) Config() model.EngineConfig { return m.cfg }

// CurrentBar returns the bar at the active bar index.
func (m *Machine) CurrentBar() model.Bar { return m.cfg.Bars[m.BarIndex] }

// Cache returns the cached accent vector / seconds-per-beat for the
// current bar.
func (m *Machine) Cache() BarCache { return m.cache }

// SetPending publishes an update to apply at the given boundary. A later
// call before the boundary fires replaces the earlier one — the last
// committed update for a boundary wins.
func (m *Machine) SetPending(cfg model.EngineConfig, boundary model.ApplyBoundary) {
	m.pending = &pendingUpdate{config: cfg, boundary: boundary}
}

// HasPending reports whether an update is waiting to commit.
func (m *Machine) HasPending() bool { return m.pending != nil }

func (m *Machine) commit() {
	cfg := m.pending.config
	m.pending = nil
	m.cfg = cfg
	m.BarIndex = clampInt(m.BarIndex, 0, len(cfg.Bars)-1)
}

// CommitIfNow applies a pending Now-boundary update immediately, before
// the caller decides the current beat's subdivision/mask. Both scheduling
// disciplines call this at the top of a scheduling decision: "Now" is
// defined as "at the next beat scheduling decision", which is this call.
func (m *Machine) CommitIfNow() (committed bool) {
	if m.pending != nil && m.pending.boundary == model.Now {
		m.commit()
		m.recomputeBarCache()
		return true
	}
	return false
}

// AdvanceBeat moves the cursor past the current beat: it is the single
// point both the pull scheduler and the push synthesizer call once a
// beat has been fully scheduled. It returns whether a new bar was
// entered (for bar-change notification) and whether a NextBar-boundary
// update committed on this wrap.
func (m *Machine) AdvanceBeat() (barEntered, committed bool) {
	n := m.CurrentBar().Meter.N
	if n <= 0 {
		n = 1
	}
	m.Beat++
	if m.Beat >= n {
		m.Beat = 0
		if m.pending != nil && m.pending.boundary == model.NextBar {
			m.commit()
			committed = true
		} else {
			m.BarIndex = m.nextBarIndex()
		}
		barEntered = true
		m.recomputeBarCache()
	}
	return barEntered, committed
}

// nextBarIndex is (b+1) if there is a next bar, else 0 if looping, else
// the last bar (playback holds there).
func (m *Machine) nextBarIndex() int {
	if m.BarIndex+1 < len(m.cfg.Bars) {
		return m.BarIndex + 1
	}
	if m.cfg.Loop {
		return 0
	}
	return len(m.cfg.Bars) - 1
}

func (m *Machine) recomputeBarCache() {
	bar := m.CurrentBar()
	poolMode, _ := rhythm.ValidateGroups(bar.Groups, bar.Meter, bar.Subdivisions)

	ticksPerBar := bar.Meter.N
	if poolMode {
		ticksPerBar = rhythm.PoolTicks(bar.Meter, bar.Subdivisions)
	}

	m.cache = BarCache{
		Accents:        rhythm.DeriveAccents(bar.Meter, bar.Groups, ticksPerBar),
		PoolMode:       poolMode,
		PoolTicks:      ticksPerBar,
		SecondsPerBeat: bar.Meter.SecondsPerBeat(m.cfg.Tempo),
	}
}

// BeatAccent returns the accent for a beat in beat-indexed (non-pool)
// mode. Slot 0 of the beat uses this; slots > 0 are always SubdivWeak.
func (m *Machine) BeatAccent(beat int) model.AccentLevel {
	c := m.cache
	if c.PoolMode || beat < 0 || beat >= len(c.Accents) {
		if beat == 0 {
			return model.BarStrong
		}
		return model.SubdivWeak
	}
	return c.Accents[beat]
}

// PoolAccent returns the accent for a cumulative sub-tick position in
// pool-indexed mode.
func (m *Machine) PoolAccent(cumulativeSubtick int) model.AccentLevel {
	c := m.cache
	if !c.PoolMode || cumulativeSubtick < 0 || cumulativeSubtick >= len(c.Accents) {
		return model.SubdivWeak
	}
	return c.Accents[cumulativeSubtick]
}

// SlotAccent resolves the accent for slot i of the current beat,
// routing to the pool-indexed vector when the bar is in pool mode and
// to the beat-indexed vector (slot 0 only) otherwise, per the "accent
// model switchpoint" rule: pick the mode once per snapshot, route every
// slot through the same vector.
func (m *Machine) SlotAccent(beat, slot, cumulativeSubtick int) model.AccentLevel {
	return SlotAccentIn(m.cache, beat, slot, cumulativeSubtick)
}

// SlotAccentIn resolves a slot accent against an explicit cache snapshot
// rather than the machine's live one. Callers that cache a BarCache
// across frames (push's scheduled-beat plan spans many frames, by which
// time the machine's own cache may already describe the next beat) use
// this to stay consistent with the plan they decided.
func SlotAccentIn(c BarCache, beat, slot, cumulativeSubtick int) model.AccentLevel {
	if c.PoolMode {
		if cumulativeSubtick < 0 || cumulativeSubtick >= len(c.Accents) {
			return model.SubdivWeak
		}
		return c.Accents[cumulativeSubtick]
	}
	if slot == 0 {
		if beat < 0 || beat >= len(c.Accents) {
			if beat == 0 {
				return model.BarStrong
			}
			return model.SubdivWeak
		}
		return c.Accents[beat]
	}
	return model.SubdivWeak
}
