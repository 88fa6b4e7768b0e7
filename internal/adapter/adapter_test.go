package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymetro/internal/config"
	"polymetro/internal/model"
)

type fakeFacade struct {
	status      model.State
	startCalls  []model.EngineConfig
	updateCalls []config.PartialConfig
	boundaries  []model.ApplyBoundary
}

func (f *fakeFacade) Start(cfg model.EngineConfig) error {
	f.startCalls = append(f.startCalls, cfg)
	f.status = model.Running
	return nil
}
func (f *fakeFacade) Update(partial config.PartialConfig, boundary model.ApplyBoundary) {
	f.updateCalls = append(f.updateCalls, partial)
	f.boundaries = append(f.boundaries, boundary)
}
func (f *fakeFacade) GetStatus() model.State { return f.status }

func fourFourBars() []config.PartialBar {
	return []config.PartialBar{{Meter: model.Meter{N: 4, D: 4}}}
}

func TestAdapter_FirstApplyStarts(t *testing.T) {
	f := &fakeFacade{status: model.Idle}
	a := New(f, config.DefaultOptions())

	a.Apply(config.PartialConfig{Bars: fourFourBars()}, model.Now)

	require.Len(t, f.startCalls, 1)
	assert.Empty(t, f.updateCalls)
}

func TestAdapter_IdenticalContentWithFreshSliceIdentityIsNoOp(t *testing.T) {
	f := &fakeFacade{status: model.Idle}
	a := New(f, config.DefaultOptions())

	a.Apply(config.PartialConfig{Bars: fourFourBars()}, model.Now)
	require.Len(t, f.startCalls, 1)

	// A brand new slice with identical content (simulating an upstream
	// re-render that reallocates) must not trigger a second Start/Update.
	a.Apply(config.PartialConfig{Bars: fourFourBars()}, model.Now)
	assert.Len(t, f.startCalls, 1)
	assert.Empty(t, f.updateCalls)
}

func TestAdapter_ChangedContentUpdatesOnceRunning(t *testing.T) {
	f := &fakeFacade{status: model.Idle}
	a := New(f, config.DefaultOptions())

	a.Apply(config.PartialConfig{Bars: fourFourBars()}, model.Now)
	require.Len(t, f.startCalls, 1)

	tempo := 200
	a.Apply(config.PartialConfig{Tempo: &tempo, Bars: fourFourBars()}, model.NextBar)

	require.Len(t, f.updateCalls, 1)
	assert.Equal(t, model.NextBar, f.boundaries[0])
	require.NotNil(t, f.updateCalls[0].Tempo)
	assert.Equal(t, 200, *f.updateCalls[0].Tempo)
}

func TestAdapter_CurrentReturnsIndependentCopy(t *testing.T) {
	f := &fakeFacade{status: model.Idle}
	a := New(f, config.DefaultOptions())
	a.Apply(config.PartialConfig{Bars: fourFourBars()}, model.Now)

	snapshot := a.Current()
	snapshot.Bars[0].Subdivisions[0] = 99

	assert.NotEqual(t, 99, a.Current().Bars[0].Subdivisions[0], "mutating a returned snapshot must not affect adapter state")
}
