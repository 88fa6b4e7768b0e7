package pull

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymetro/internal/config"
	"polymetro/internal/model"
)

// fakeParam records every automation call; order matters for assertions
// about attack/decay envelopes.
type fakeParam struct {
	mu    sync.Mutex
	calls []string
}

func (p *fakeParam) SetValueAtTime(value, at float64) {
	p.mu.Lock()
	p.calls = append(p.calls, "set")
	p.mu.Unlock()
}
func (p *fakeParam) LinearRampToValueAtTime(value, at float64) {
	p.mu.Lock()
	p.calls = append(p.calls, "ramp")
	p.mu.Unlock()
}

type fakeGain struct {
	gain *fakeParam
}

func (g *fakeGain) Gain() Param             { return g.gain }
func (g *fakeGain) ConnectToDestination()   {}

type fakeOsc struct {
	freq    *fakeParam
	started bool
	stopped bool
}

func (o *fakeOsc) Frequency() Param        { return o.freq }
func (o *fakeOsc) ConnectGain(g GainNode)  {}
func (o *fakeOsc) Start(at float64)        { o.started = true }
func (o *fakeOsc) Stop(at float64)         { o.stopped = true }

type fakeHost struct {
	mu          sync.Mutex
	now         float64
	oscillators []*fakeOsc
	gains       []*fakeGain
}

func (h *fakeHost) CurrentTimeSeconds() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *fakeHost) advance(d time.Duration) {
	h.mu.Lock()
	h.now += d.Seconds()
	h.mu.Unlock()
}

func (h *fakeHost) CreateOscillator() OscillatorNode {
	o := &fakeOsc{freq: &fakeParam{}}
	h.mu.Lock()
	h.oscillators = append(h.oscillators, o)
	h.mu.Unlock()
	return o
}

func (h *fakeHost) CreateGain() GainNode {
	g := &fakeGain{gain: &fakeParam{}}
	h.mu.Lock()
	h.gains = append(h.gains, g)
	h.mu.Unlock()
	return g
}

func fourFourConfig() model.EngineConfig {
	return config.Normalize(nil, config.PartialConfig{
		Bars: []config.PartialBar{{Meter: model.Meter{N: 4, D: 4}}},
	}, config.DefaultOptions())
}

func TestScheduler_SchedulesEventsWithinHorizon(t *testing.T) {
	host := &fakeHost{}
	cfg := fourFourConfig()
	cfg.Tempo = 120
	s := NewScheduler(cfg, host)
	s.StartDelay = 0

	var mu sync.Mutex
	var ticks []model.TickEvent
	s.OnTick = func(e model.TickEvent) {
		mu.Lock()
		ticks = append(ticks, e)
		mu.Unlock()
	}

	s.tick()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, ticks, "at least the first beat should fall inside the schedule-ahead window")
	assert.Equal(t, 0, ticks[0].Beat)
	assert.Equal(t, model.BarStrong, ticks[0].Accent)

	host.mu.Lock()
	defer host.mu.Unlock()
	assert.NotEmpty(t, host.oscillators, "audible slots should enqueue an oscillator")
	for _, o := range host.oscillators {
		assert.True(t, o.started)
		assert.True(t, o.stopped)
	}
}

func TestScheduler_BarChangeDedup(t *testing.T) {
	host := &fakeHost{}
	cfg := fourFourConfig()
	cfg.Tempo = 600 // fast bar, so one lookahead window spans multiple bars
	s := NewScheduler(cfg, host)
	s.StartDelay = 0
	s.ScheduleAhead = 2 * time.Second

	var mu sync.Mutex
	var bars []int
	s.OnBarChange = func(b int) {
		mu.Lock()
		bars = append(bars, b)
		mu.Unlock()
	}

	s.tick()
	host.advance(2 * time.Second)
	s.tick()

	time.Sleep(500 * time.Millisecond) // the bar-0 AfterFunc timer fires 400ms after the first tick

	mu.Lock()
	defer mu.Unlock()
	seen := map[int]int{}
	for _, b := range bars {
		seen[b]++
	}
	for bar, count := range seen {
		assert.Equal(t, 1, count, "bar %d announced more than once", bar)
	}
}

func TestScheduler_PublishNextBar_DoesNotChangeCurrentBeat(t *testing.T) {
	host := &fakeHost{}
	cfg := fourFourConfig()
	s := NewScheduler(cfg, host)
	s.StartDelay = 0

	updated := cfg.Clone()
	updated.Tempo = 240
	updated.Fingerprint = config.Fingerprint(updated)
	s.Publish(updated, model.NextBar)

	s.tick()
	assert.Equal(t, 120, s.machine.Config().Tempo, "NextBar update should not apply before the bar wraps")
}

func TestScheduler_RequestTestTick_EnqueuesImmediateClick(t *testing.T) {
	host := &fakeHost{}
	cfg := fourFourConfig()
	s := NewScheduler(cfg, host)

	s.RequestTestTick()
	s.tick()

	host.mu.Lock()
	defer host.mu.Unlock()
	assert.NotEmpty(t, host.oscillators)
}

func TestScheduler_Run_StopsOnContextCancel(t *testing.T) {
	host := &fakeHost{}
	cfg := fourFourConfig()
	s := NewScheduler(cfg, host)
	s.Lookahead = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}
