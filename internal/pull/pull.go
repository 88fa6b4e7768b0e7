// Package pull implements the callback-timeline scheduling discipline: a
// lookahead loop that wakes on an interval, schedules upcoming click
// events by absolute timestamp against a host-provided audio timeline,
// and advances the Timeline State Machine ahead of playback.
//
// The teacher has no callback-timeline host (oto/v2 is pull-based PCM,
// not a scheduled-node graph); this package is grounded on the pull
// scheduler's own description in spec §4.D and structured the way the
// teacher structures its one background worker (audio.Engine's single
// goroutine, config read through a pointer, no locks on the hot path).
package pull

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"polymetro/internal/model"
	"polymetro/internal/rhythm"
	"polymetro/internal/timeline"
)

// Param is a single automatable value on a host node, mirroring the Web
// Audio AudioParam shape spec §6.1 requires of a callback-timeline host.
type Param interface {
	SetValueAtTime(value, at float64)
	LinearRampToValueAtTime(value, at float64)
}

// GainNode is a host gain node: one automatable Param wired to the
// destination.
type GainNode interface {
	Gain() Param
	ConnectToDestination()
}

// OscillatorNode is a host oscillator: one automatable frequency Param,
// a start/stop lifecycle, and a connection to a gain node.
type OscillatorNode interface {
	Frequency() Param
	ConnectGain(g GainNode)
	Start(at float64)
	Stop(at float64)
}

// CallbackTimelineHost is the external collaborator for pull mode, per
// spec §6.1: a sample-accurate audio timeline exposing its own clock and
// node factories.
type CallbackTimelineHost interface {
	CurrentTimeSeconds() float64
	CreateOscillator() OscillatorNode
	CreateGain() GainNode
}

const (
	DefaultLookahead     = 25 * time.Millisecond
	DefaultScheduleAhead = 180 * time.Millisecond
	DefaultStartDelay    = 60 * time.Millisecond

	clickAttack = 0.002 // seconds
	clickDecay  = 0.016 // seconds
)

type pendingSnapshot struct {
	config   model.EngineConfig
	boundary model.ApplyBoundary
}

// Scheduler is the pull-mode audio engine. One Scheduler owns one
// CallbackTimelineHost for its lifetime.
type Scheduler struct {
	host CallbackTimelineHost

	Lookahead     time.Duration
	ScheduleAhead time.Duration
	StartDelay    time.Duration

	machine *timeline.Machine

	pending   atomic.Pointer[pendingSnapshot]
	overrides atomic.Pointer[model.AccentOverrides]
	testTick  atomic.Bool

	OnTick      func(model.TickEvent)
	OnBarChange func(int)

	// worker-local state
	nextBeatTime    float64
	beatGuide       bool
	tickIndex       int64
	announcedBarAt  map[int]struct{}
	barChangeTimers []*time.Timer
	timersMu        sync.Mutex

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewScheduler builds a pull scheduler over host, starting from initial.
func NewScheduler(initial model.EngineConfig, host CallbackTimelineHost) *Scheduler {
	s := &Scheduler{
		host:           host,
		Lookahead:      DefaultLookahead,
		ScheduleAhead:  DefaultScheduleAhead,
		StartDelay:     DefaultStartDelay,
		machine:        timeline.NewMachine(initial),
		beatGuide:      initial.BeatGuide,
		announcedBarAt: make(map[int]struct{}),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
	return s
}

// Publish stages an update for the apply boundary it requests.
func (s *Scheduler) Publish(cfg model.EngineConfig, boundary model.ApplyBoundary) {
	s.pending.Store(&pendingSnapshot{config: cfg, boundary: boundary})
}

// SetAccentOverrides swaps the live accent gain/frequency overrides.
func (s *Scheduler) SetAccentOverrides(o *model.AccentOverrides) {
	s.overrides.Store(o)
}

// RequestTestTick schedules one BarStrong click at now + StartDelay.
func (s *Scheduler) RequestTestTick() {
	s.testTick.Store(true)
}

// SetOnTick installs the tick listener invoked from the scheduler goroutine.
func (s *Scheduler) SetOnTick(fn func(model.TickEvent)) { s.OnTick = fn }

// SetOnBarChange installs the bar-change listener.
func (s *Scheduler) SetOnBarChange(fn func(int)) { s.OnBarChange = fn }

// Run drives the lookahead loop until ctx is canceled or Stop is called.
// It blocks; callers run it on a dedicated goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.doneCh)
	defer s.cancelPendingBarTimers()

	s.nextBeatTime = s.host.CurrentTimeSeconds() + s.StartDelay.Seconds()

	ticker := time.NewTicker(s.Lookahead)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// Stop requests the scheduler loop exit; it does not block.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Done is closed once Run has returned.
func (s *Scheduler) Done() <-chan struct{} { return s.doneCh }

func (s *Scheduler) cancelPendingBarTimers() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	for _, t := range s.barChangeTimers {
		t.Stop()
	}
	s.barChangeTimers = nil
}

// tick is one lookahead wake: schedule every beat whose time falls
// inside [now, now+ScheduleAhead).
func (s *Scheduler) tick() {
	if s.testTick.CompareAndSwap(true, false) {
		s.scheduleTestTick()
	}

	now := s.host.CurrentTimeSeconds()
	horizon := now + s.ScheduleAhead.Seconds()

	for s.nextBeatTime < horizon {
		s.machine.CommitIfNow()
		if pend := s.pending.Swap(nil); pend != nil {
			s.machine.SetPending(pend.config, pend.boundary)
			s.machine.CommitIfNow()
		}
		s.beatGuide = s.machine.Config().BeatGuide

		s.scheduleBeat(s.nextBeatTime)

		cache := s.machine.Cache()
		s.nextBeatTime += cache.SecondsPerBeat

		barEntered, _ := s.machine.AdvanceBeat()
		if barEntered && s.machine.Beat == 0 {
			s.scheduleBarChangeAt(s.machine.BarIndex, s.nextBeatTime)
		}
	}
}

// scheduleBeat enqueues oscillator/gain events for every slot of beat β
// at absolute host time t, and emits the corresponding tick events.
func (s *Scheduler) scheduleBeat(t float64) {
	bar := s.machine.CurrentBar()
	cache := s.machine.Cache()
	beat := s.machine.Beat

	slotCount := 1
	if beat < len(bar.Subdivisions) {
		slotCount = bar.Subdivisions[beat]
	}
	var mask []bool
	if beat < len(bar.Masks) {
		mask = rhythm.MaskWithBeatGuide(bar.Masks[beat], s.beatGuide)
	}

	cumBase := 0
	for i := 0; i < beat && i < len(bar.Subdivisions); i++ {
		cumBase += bar.Subdivisions[i]
	}

	subDt := cache.SecondsPerBeat / float64(slotCount)
	ov := s.overrides.Load()

	for i := 0; i < slotCount; i++ {
		ti := t + float64(i)*subDt
		audible := i >= len(mask) || mask[i]
		accent := timeline.SlotAccentIn(cache, beat, i, cumBase+i)

		if audible {
			s.enqueueClick(ti, ov.FrequencyFor(accent), clamp(ov.GainFor(accent), 0, 1))
		}

		s.emitTick(model.TickEvent{
			Index:     s.tickIndex,
			Bar:       s.machine.BarIndex,
			Beat:      beat,
			Slot:      i,
			SlotCount: slotCount,
			Audible:   audible,
			Accent:    accent,
			Gain:      ov.GainFor(accent),
			AtMs:      ti * 1000,
		})
	}
}

func (s *Scheduler) scheduleTestTick() {
	t := s.host.CurrentTimeSeconds() + s.StartDelay.Seconds()
	ov := s.overrides.Load()
	s.enqueueClick(t, ov.FrequencyFor(model.BarStrong), clamp(ov.GainFor(model.BarStrong), 0, 1))
}

// enqueueClick schedules one click on the host timeline at absolute time
// t: a 2ms linear attack and a 16ms linear decay, with the oscillator
// stopped 30ms after t.
func (s *Scheduler) enqueueClick(t, freq, peak float64) {
	osc := s.host.CreateOscillator()
	gain := s.host.CreateGain()
	osc.ConnectGain(gain)
	gain.ConnectToDestination()

	osc.Frequency().SetValueAtTime(freq, t)

	g := gain.Gain()
	g.SetValueAtTime(0, t)
	g.LinearRampToValueAtTime(peak, t+clickAttack)
	g.LinearRampToValueAtTime(0, t+clickAttack+clickDecay)

	osc.Start(t)
	osc.Stop(t + 0.030)
}

// scheduleBarChangeAt arranges a one-shot onBarChange callback to fire at
// wall time ≈ t (measured from the host clock's current offset),
// deduplicated so the same bar index never announces twice.
func (s *Scheduler) scheduleBarChangeAt(bar int, t float64) {
	s.timersMu.Lock()
	if _, seen := s.announcedBarAt[bar]; seen {
		s.timersMu.Unlock()
		return
	}
	s.announcedBarAt[bar] = struct{}{}
	s.timersMu.Unlock()

	delay := t - s.host.CurrentTimeSeconds()
	if delay < 0 {
		delay = 0
	}
	timer := time.AfterFunc(time.Duration(delay*float64(time.Second)), func() {
		if s.OnBarChange != nil {
			s.OnBarChange(bar)
		}
	})
	s.timersMu.Lock()
	s.barChangeTimers = append(s.barChangeTimers, timer)
	s.timersMu.Unlock()
}

func (s *Scheduler) emitTick(evt model.TickEvent) {
	s.tickIndex++
	if s.OnTick != nil {
		s.OnTick(evt)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		slog.Debug("pull: clamping accent gain below range", "value", v)
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
