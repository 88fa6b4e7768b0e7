// Package engine presents the caller-facing facade: start/stop/update,
// accent-gain overrides, status, and the onTick/onState/onBarChange
// subscription channels, backed by whichever scheduling discipline
// (internal/push or internal/pull) the engine was constructed with.
//
// Grounded on the teacher's audio.Engine: a small state machine guarding
// goroutine lifecycle, a bounded stop join, and slog-reported failures
// at the same boundaries (host open, buffer write) the teacher wraps.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"polymetro/internal/config"
	"polymetro/internal/model"
)

// StopGrace is how long stop() waits for the worker to exit cooperatively
// before abandoning it (spec §5: "joins worker with bounded timeout,
// ≈1.2s").
const StopGrace = 1200 * time.Millisecond

// worker is the shape both internal/push.Synthesizer and
// internal/pull.Scheduler satisfy; the facade is mode-agnostic over it.
type worker interface {
	Publish(cfg model.EngineConfig, boundary model.ApplyBoundary)
	SetAccentOverrides(o *model.AccentOverrides)
	RequestTestTick()
	Run(ctx context.Context)
	Stop()
	Done() <-chan struct{}
	SetOnTick(func(model.TickEvent))
	SetOnBarChange(func(int))
}

// writeErrorReporter is satisfied by push.Synthesizer (pull has no
// buffer-write boundary to fail at).
type writeErrorReporter interface {
	SetOnWriteError(func(error))
}

// waveformProvider is satisfied by push.Synthesizer; pull has no PCM
// ring buffer to sample from.
type waveformProvider interface {
	Waveform() []float64
}

// WorkerFactory builds the scheduling worker for a fresh start() call. It
// is where host construction happens (oto context open for push, the
// caller-supplied callback-timeline host for pull), so a host failure at
// this point surfaces as AudioUnavailable rather than panicking.
type WorkerFactory func(initial model.EngineConfig) (worker, error)

type tickSub struct {
	id int
	fn func(model.TickEvent)
}
type stateSub struct {
	id int
	fn func(model.State, string)
}
type barSub struct {
	id int
	fn func(int)
}

// Engine is the caller-facing facade. One Engine may be started and
// stopped repeatedly; each start spins up a fresh worker.
type Engine struct {
	newWorker WorkerFactory
	opts      config.Options

	mu         sync.Mutex
	state      model.State
	current    model.EngineConfig
	hasConfig  bool
	w          worker
	cancel     context.CancelFunc

	overrides atomic.Pointer[model.AccentOverrides]

	subMu     sync.Mutex
	nextSubID int
	tickSubs  []tickSub
	stateSubs []stateSub
	barSubs   []barSub
}

// New builds an idle facade. newWorker is called once per start().
func New(newWorker WorkerFactory, opts config.Options) *Engine {
	return &Engine{newWorker: newWorker, opts: opts, state: model.Idle}
}

// OnTick registers a tick listener; call the returned func to unregister.
func (e *Engine) OnTick(fn func(model.TickEvent)) func() {
	return e.addTickSub(fn)
}

// OnState registers a state listener; call the returned func to unregister.
func (e *Engine) OnState(fn func(model.State, string)) func() {
	return e.addStateSub(fn)
}

// OnBarChange registers a bar-change listener; call the returned func to
// unregister.
func (e *Engine) OnBarChange(fn func(int)) func() {
	return e.addBarSub(fn)
}

func (e *Engine) addTickSub(fn func(model.TickEvent)) func() {
	e.subMu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.tickSubs = append(e.tickSubs, tickSub{id: id, fn: fn})
	e.subMu.Unlock()
	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		for i, s := range e.tickSubs {
			if s.id == id {
				e.tickSubs = append(e.tickSubs[:i], e.tickSubs[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) addStateSub(fn func(model.State, string)) func() {
	e.subMu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.stateSubs = append(e.stateSubs, stateSub{id: id, fn: fn})
	e.subMu.Unlock()
	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		for i, s := range e.stateSubs {
			if s.id == id {
				e.stateSubs = append(e.stateSubs[:i], e.stateSubs[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) addBarSub(fn func(int)) func() {
	e.subMu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.barSubs = append(e.barSubs, barSub{id: id, fn: fn})
	e.subMu.Unlock()
	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		for i, s := range e.barSubs {
			if s.id == id {
				e.barSubs = append(e.barSubs[:i], e.barSubs[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) emitTick(evt model.TickEvent) {
	e.subMu.Lock()
	subs := append([]tickSub(nil), e.tickSubs...)
	e.subMu.Unlock()
	for _, s := range subs {
		s.fn(evt)
	}
}

func (e *Engine) emitBarChange(bar int) {
	e.subMu.Lock()
	subs := append([]barSub(nil), e.barSubs...)
	e.subMu.Unlock()
	for _, s := range subs {
		s.fn(bar)
	}
}

func (e *Engine) setState(st model.State, detail string) {
	e.mu.Lock()
	e.state = st
	e.mu.Unlock()

	e.subMu.Lock()
	subs := append([]stateSub(nil), e.stateSubs...)
	e.subMu.Unlock()
	for _, s := range subs {
		s.fn(st, detail)
	}
}

// GetStatus returns the current lifecycle state.
func (e *Engine) GetStatus() model.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start begins playback from cfg. If already running, it is treated as
// update(cfg) with NextBar as the apply boundary (per spec §4.F).
func (e *Engine) Start(cfg model.EngineConfig) error {
	e.mu.Lock()
	running := e.state == model.Running || e.state == model.Starting
	e.mu.Unlock()

	normalized := config.Normalize(nil, config.ToPartial(cfg), e.opts)

	if running {
		e.Update(config.ToPartial(normalized), model.NextBar)
		return nil
	}

	e.setState(model.Starting, "")

	w, err := e.newWorker(normalized)
	if err != nil {
		slog.Error("engine: failed to start audio worker", "error", err)
		e.setState(model.Error, fmt.Sprintf("%s: %v", model.AudioUnavailable, err))
		return fmt.Errorf("engine: start: %w", err)
	}

	w.SetAccentOverrides(e.overrides.Load())
	w.SetOnTick(e.emitTick)
	w.SetOnBarChange(e.emitBarChange)
	if wr, ok := w.(writeErrorReporter); ok {
		wr.SetOnWriteError(e.onWorkerWriteError)
	}

	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.w = w
	e.cancel = cancel
	e.current = normalized
	e.hasConfig = true
	e.mu.Unlock()

	go w.Run(ctx)
	e.setState(model.Running, "")
	return nil
}

// onWorkerWriteError runs on the worker's own goroutine, just before Run
// returns and closes Done(); Stop must not be called synchronously here,
// since it blocks on that same Done() channel.
func (e *Engine) onWorkerWriteError(err error) {
	slog.Error("engine: audio host rejected write, stopping", "error", err)
	e.setState(model.Error, fmt.Sprintf("%s: %v", model.AudioWriteFailed, err))
	go e.Stop()
}

// Stop requests the worker exit and waits up to StopGrace before
// abandoning it.
func (e *Engine) Stop() {
	e.mu.Lock()
	w := e.w
	cancel := e.cancel
	e.w = nil
	e.cancel = nil
	e.mu.Unlock()

	if w == nil {
		return
	}

	e.setState(model.Stopping, "")
	w.Stop()
	if cancel != nil {
		cancel()
	}

	select {
	case <-w.Done():
	case <-time.After(StopGrace):
		slog.Warn("engine: worker did not exit within grace window", "grace", StopGrace)
		e.setState(model.Error, model.StopTimeout.String())
		return
	}

	e.setState(model.Idle, "")
}

// Update normalizes partial against the active config and, if its
// fingerprint differs, records it as the active config and publishes it
// to the running worker at the given boundary. Nothing changes if the
// fingerprint is unchanged; nothing is published if the engine is not
// running.
func (e *Engine) Update(partial config.PartialConfig, boundary model.ApplyBoundary) {
	e.mu.Lock()
	prev := e.current
	hasConfig := e.hasConfig
	w := e.w
	e.mu.Unlock()

	var prevPtr *model.EngineConfig
	if hasConfig {
		prevPtr = &prev
	}
	normalized := config.Normalize(prevPtr, partial, e.opts)
	if hasConfig && normalized.Fingerprint == prev.Fingerprint {
		return
	}

	e.mu.Lock()
	e.current = normalized
	e.hasConfig = true
	e.mu.Unlock()

	if w != nil {
		w.Publish(normalized, boundary)
	}
}

// SetAccentGains swaps the live accent gain/frequency overrides,
// effective immediately and independent of the snapshot pipeline.
func (e *Engine) SetAccentGains(o *model.AccentOverrides) {
	e.overrides.Store(o)
	e.mu.Lock()
	w := e.w
	e.mu.Unlock()
	if w != nil {
		w.SetAccentOverrides(o)
	}
}

// PlayTestTick schedules a single BarStrong click immediately. Returns
// false if the engine is not running to accept it.
func (e *Engine) PlayTestTick() bool {
	e.mu.Lock()
	w := e.w
	e.mu.Unlock()
	if w == nil {
		return false
	}
	w.RequestTestTick()
	return true
}

// Waveform returns the most recent PCM samples written to the audio
// host, for oscilloscope-style display. Returns nil for workers with no
// sample buffer to read (e.g. the pull scheduler).
func (e *Engine) Waveform() []float64 {
	e.mu.Lock()
	w := e.w
	e.mu.Unlock()
	if wp, ok := w.(waveformProvider); ok {
		return wp.Waveform()
	}
	return nil
}
