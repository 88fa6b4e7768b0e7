// Package push implements the PCM-buffer scheduling discipline: a
// per-frame synthesis loop that drives a blocking-write audio host,
// advancing the timeline state machine at beat boundaries and
// synthesizing click bursts entirely on the sample grid.
//
// The teacher's audio.Engine.audioStream.Read is the model: one
// goroutine holding exclusive frame-local state (phase, envelope,
// sample position) and reading shared config only through an atomic
// pointer, never a lock, on the hot path.
package push

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"polymetro/internal/model"
	"polymetro/internal/rhythm"
	"polymetro/internal/timeline"
)

// PCMHost is the external audio collaborator for push mode: a blocking
// buffer writer with a simple lifecycle, per spec §6.2.
type PCMHost interface {
	Write(samples []byte) (int, error)
	Play()
	Pause()
	Flush()
	Stop()
	Release()
	MinBufferSize() int
}

const (
	DefaultSampleRate    = 48000
	internalBufferFrames = 256
	clickDurationSec     = 0.010
	waveformSize         = 128
)

type clickBurst struct {
	remaining int
	total     int
	freq      float64
	peak      float64
	phase     float64
}

func (b *clickBurst) active() bool { return b.remaining > 0 }

func (b *clickBurst) start(freq, peak float64, sampleRate int) {
	total := int(clickDurationSec * float64(sampleRate))
	if total < 1 {
		total = 1
	}
	b.total = total
	b.remaining = total
	b.freq = freq
	b.peak = peak
	b.phase = 0
}

// sample renders and decays one frame of the burst; returns 0 if idle.
func (b *clickBurst) sample(sampleRate int) float64 {
	if b.remaining <= 0 {
		return 0
	}
	env := float64(b.remaining) / float64(b.total)
	v := math.Sin(b.phase) * b.peak * env * env
	b.phase += 2 * math.Pi * b.freq / float64(sampleRate)
	if b.phase >= 2*math.Pi {
		b.phase -= 2 * math.Pi
	}
	b.remaining--
	return v
}

type pendingSnapshot struct {
	config   model.EngineConfig
	boundary model.ApplyBoundary
}

// Synthesizer is the push-mode audio engine. One Synthesizer owns one
// PCMHost for its lifetime; create a new one per engine start.
type Synthesizer struct {
	sampleRate int
	host       PCMHost

	machine *timeline.Machine

	pending   atomic.Pointer[pendingSnapshot]
	overrides atomic.Pointer[model.AccentOverrides]
	testTick  atomic.Bool

	OnTick       func(model.TickEvent)
	OnBarChange  func(int)
	OnWriteError func(error)

	// frame-local state, touched only by the synthesis goroutine
	samplesUntilBeat float64
	samplesUntilSub  float64
	slotIndex        int
	beatGuide        bool
	burst            clickBurst
	tickIndex        int64
	totalFrames      int64
	lastAnnouncedBar int
	announcedAny     bool

	// the beat currently being scheduled (decided in step 1, consumed by
	// step 2 across however many frames the beat spans). Cached rather
	// than re-read from the machine because AdvanceBeat moves the
	// machine's cursor on to the *next* beat immediately after step 1
	// decides this one.
	schedBarIndex  int
	schedBeat      int
	schedBar       model.Bar
	schedCache     timeline.BarCache
	schedSlotCount int
	schedMask      []bool

	waveformMu  sync.Mutex
	waveform    []float64
	waveformIdx int

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSynthesizer builds a push synthesizer over host at sampleRate,
// starting from the given initial config.
func NewSynthesizer(initial model.EngineConfig, host PCMHost, sampleRate int) *Synthesizer {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	s := &Synthesizer{
		sampleRate: sampleRate,
		host:       host,
		machine:    timeline.NewMachine(initial),
		beatGuide:  initial.BeatGuide,
		waveform:   make([]float64, waveformSize),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	s.samplesUntilBeat = 0
	s.samplesUntilSub = 0
	s.lastAnnouncedBar = -1
	return s
}

// Publish stages an update for the apply boundary it requests. The audio
// goroutine reads this only at beat boundaries, never mid-frame.
func (s *Synthesizer) Publish(cfg model.EngineConfig, boundary model.ApplyBoundary) {
	s.pending.Store(&pendingSnapshot{config: cfg, boundary: boundary})
}

// SetAccentOverrides swaps the live accent gain/frequency overrides.
// Effective immediately, independent of the snapshot pipeline.
func (s *Synthesizer) SetAccentOverrides(o *model.AccentOverrides) {
	s.overrides.Store(o)
}

// RequestTestTick arranges for a single BarStrong click to be injected
// at the next frame.
func (s *Synthesizer) RequestTestTick() {
	s.testTick.Store(true)
}

// SetOnTick installs the tick listener invoked from the audio goroutine.
func (s *Synthesizer) SetOnTick(fn func(model.TickEvent)) { s.OnTick = fn }

// SetOnBarChange installs the bar-change listener invoked from the audio
// goroutine.
func (s *Synthesizer) SetOnBarChange(fn func(int)) { s.OnBarChange = fn }

// SetOnWriteError installs the listener invoked when the host rejects a
// buffer write.
func (s *Synthesizer) SetOnWriteError(fn func(error)) { s.OnWriteError = fn }

// Waveform returns a copy of the most recent samples, oldest first, for
// a level-meter style display. Not part of the scheduling contract.
func (s *Synthesizer) Waveform() []float64 {
	s.waveformMu.Lock()
	defer s.waveformMu.Unlock()
	out := make([]float64, waveformSize)
	for i := 0; i < waveformSize; i++ {
		out[i] = s.waveform[(s.waveformIdx+i)%waveformSize]
	}
	return out
}

// Run drives the synthesis loop until ctx is canceled or Stop is called.
// It blocks; callers run it on a dedicated goroutine.
func (s *Synthesizer) Run(ctx context.Context) {
	defer close(s.doneCh)

	s.host.Play()
	buf := make([]byte, internalBufferFrames*2)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		for i := 0; i < internalBufferFrames; i++ {
			sample := s.nextFrame()
			v := clamp(sample, -1, 1)
			iv := int16(v * 32767)
			buf[i*2] = byte(iv)
			buf[i*2+1] = byte(iv >> 8)

			s.waveformMu.Lock()
			s.waveform[s.waveformIdx] = v
			s.waveformIdx = (s.waveformIdx + 1) % waveformSize
			s.waveformMu.Unlock()
		}

		if _, err := s.host.Write(buf); err != nil {
			slog.Error("push: host rejected buffer write, stopping", "error", err)
			if s.OnWriteError != nil {
				s.OnWriteError(err)
			}
			return
		}
	}
}

// Stop requests the synthesis loop exit; it does not block.
func (s *Synthesizer) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Done is closed once Run has returned.
func (s *Synthesizer) Done() <-chan struct{} { return s.doneCh }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *Synthesizer) audioTimeMs() float64 {
	return float64(s.totalFrames) * 1000.0 / float64(s.sampleRate)
}

// nextFrame synthesizes one mono sample, advancing all frame-local
// state per the spec's per-frame inner loop. Step 1 fires once per beat
// and decides that beat's slot plan; step 2 walks the plan's remaining
// slots across however many subsequent frames the beat spans. The plan
// is cached in the sched* fields because AdvanceBeat (called at the end
// of step 1) moves the machine's cursor on to the next beat immediately,
// so step 2 cannot re-derive it from the machine.
func (s *Synthesizer) nextFrame() float64 {
	if s.samplesUntilBeat <= 0 {
		if pend := s.pending.Swap(nil); pend != nil {
			s.machine.SetPending(pend.config, pend.boundary)
		}
		s.machine.CommitIfNow()
		s.beatGuide = s.machine.Config().BeatGuide

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

		s.schedBarIndex = s.machine.BarIndex
		s.schedBeat = beat
		s.schedBar = bar
		s.schedCache = cache
		s.schedSlotCount = slotCount
		s.schedMask = mask

		samplesPerBeat := cache.SecondsPerBeat * float64(s.sampleRate)

		s.triggerSlot(0)
		s.slotIndex = 1
		if slotCount > 0 {
			s.samplesUntilSub = samplesPerBeat / float64(slotCount)
		}

		barEntered, _ := s.machine.AdvanceBeat()
		if barEntered {
			s.announceBarChange()
		}

		s.samplesUntilBeat += samplesPerBeat
	} else if s.samplesUntilSub <= 0 && s.slotIndex < s.schedSlotCount {
		samplesPerBeat := s.schedCache.SecondsPerBeat * float64(s.sampleRate)
		s.triggerSlot(s.slotIndex)
		s.slotIndex++
		if s.schedSlotCount > 0 {
			s.samplesUntilSub += samplesPerBeat / float64(s.schedSlotCount)
		}
	}

	if s.testTick.CompareAndSwap(true, false) {
		ov := s.overrides.Load()
		s.burst.start(ov.FrequencyFor(model.BarStrong), clamp(ov.GainFor(model.BarStrong), 0, 1), s.sampleRate)
	}

	var sample float64
	if s.burst.active() {
		sample = s.burst.sample(s.sampleRate)
	}

	s.samplesUntilBeat--
	s.samplesUntilSub--
	s.totalFrames++

	return sample
}

// triggerSlot starts the click burst (if the slot is audible) and emits
// the corresponding tick event for slot of the beat currently captured
// in the sched* fields. Every slot gets a tick event, audible or not, so
// a playhead display can track subdivision position at full resolution.
func (s *Synthesizer) triggerSlot(slot int) {
	cumulative := 0
	for i := 0; i < s.schedBeat && i < len(s.schedBar.Subdivisions); i++ {
		cumulative += s.schedBar.Subdivisions[i]
	}
	cumulative += slot

	audible := slot >= len(s.schedMask) || s.schedMask[slot]
	accent := timeline.SlotAccentIn(s.schedCache, s.schedBeat, slot, cumulative)
	ov := s.overrides.Load()

	if audible {
		freq := ov.FrequencyFor(accent)
		peak := clamp(ov.GainFor(accent), 0, 1)
		s.burst.start(freq, peak, s.sampleRate)
	}

	evt := model.TickEvent{
		Index:     s.tickIndex,
		Bar:       s.schedBarIndex,
		Beat:      s.schedBeat,
		Slot:      slot,
		SlotCount: s.schedSlotCount,
		Audible:   audible,
		Accent:    accent,
		Gain:      ov.GainFor(accent),
		AtMs:      s.audioTimeMs(),
	}
	s.tickIndex++
	if s.OnTick != nil {
		s.OnTick(evt)
	}
}

func (s *Synthesizer) announceBarChange() {
	bar := s.machine.BarIndex
	if s.announcedAny && bar == s.lastAnnouncedBar {
		return
	}
	s.announcedAny = true
	s.lastAnnouncedBar = bar
	if s.OnBarChange != nil {
		s.OnBarChange(bar)
	}
}
