package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymetro/internal/config"
	"polymetro/internal/model"
)

func fourFour() model.Bar {
	return config.Normalize(nil, config.PartialConfig{
		Bars: []config.PartialBar{{Meter: model.Meter{N: 4, D: 4}}},
	}, config.DefaultOptions()).Bars[0]
}

func threeFour() model.Bar {
	return config.Normalize(nil, config.PartialConfig{
		Bars: []config.PartialBar{{Meter: model.Meter{N: 3, D: 4}}},
	}, config.DefaultOptions()).Bars[0]
}

func TestMachine_BarSwapAtBoundary(t *testing.T) {
	cfg := model.EngineConfig{
		Tempo: 120,
		Bars:  []model.Bar{fourFour(), threeFour()},
		Loop:  true,
	}
	m := NewMachine(cfg)

	var barEntered bool
	for i := 0; i < 4; i++ {
		barEntered, _ = m.AdvanceBeat()
	}
	assert.True(t, barEntered, "entering bar 1 after 4 beats of a 4/4 bar")
	assert.Equal(t, 1, m.BarIndex)
	assert.Equal(t, 0, m.Beat)

	for i := 0; i < 3; i++ {
		barEntered, _ = m.AdvanceBeat()
	}
	assert.True(t, barEntered, "3/4 bar wraps after 3 beats, looping back to bar 0")
	assert.Equal(t, 0, m.BarIndex)
}

func TestMachine_ApplyAtNextBar_CurrentBarFinishesUnchanged(t *testing.T) {
	cfg := model.EngineConfig{Tempo: 120, Bars: []model.Bar{fourFour()}, Loop: true}
	m := NewMachine(cfg)

	updated := cfg.Clone()
	updated.Bars[0].Subdivisions[0] = 4
	updated.Bars[0].Masks[0] = []bool{true, true, true, true}
	updated.Fingerprint = config.Fingerprint(updated)
	m.SetPending(updated, model.NextBar)

	// three more beats still inside the original bar: no commit yet.
	for i := 0; i < 3; i++ {
		barEntered, committed := m.AdvanceBeat()
		assert.False(t, committed)
		assert.False(t, barEntered)
		assert.Equal(t, 1, m.CurrentBar().Subdivisions[0], "current bar unchanged until boundary")
	}

	// fourth beat wraps to the next bar and commits.
	barEntered, committed := m.AdvanceBeat()
	assert.True(t, barEntered)
	assert.True(t, committed)
	assert.Equal(t, 4, m.CurrentBar().Subdivisions[0], "next bar reflects the update")
}

func TestMachine_ApplyNow_CommitsAtNextScheduledBeat(t *testing.T) {
	cfg := model.EngineConfig{Tempo: 120, Bars: []model.Bar{fourFour()}, Loop: true}
	m := NewMachine(cfg)

	updated := cfg.Clone()
	updated.Tempo = 180
	updated.Fingerprint = config.Fingerprint(updated)
	m.SetPending(updated, model.Now)

	committed := m.CommitIfNow()
	assert.True(t, committed)
	assert.Equal(t, 180, m.Config().Tempo)
}

func TestMachine_LastCommitForABoundaryWins(t *testing.T) {
	cfg := model.EngineConfig{Tempo: 120, Bars: []model.Bar{fourFour()}, Loop: true}
	m := NewMachine(cfg)

	a := cfg.Clone()
	a.Tempo = 150
	m.SetPending(a, model.Now)

	b := cfg.Clone()
	b.Tempo = 200
	m.SetPending(b, model.Now)

	committed := m.CommitIfNow()
	require.True(t, committed)
	assert.Equal(t, 200, m.Config().Tempo)
}

func TestMachine_NonLoopingHoldsOnLastBar(t *testing.T) {
	cfg := model.EngineConfig{Tempo: 120, Bars: []model.Bar{fourFour(), threeFour()}, Loop: false}
	m := NewMachine(cfg)

	for i := 0; i < 4; i++ {
		m.AdvanceBeat()
	}
	assert.Equal(t, 1, m.BarIndex)
	for i := 0; i < 3; i++ {
		m.AdvanceBeat()
	}
	assert.Equal(t, 1, m.BarIndex, "holds at the last bar instead of wrapping")
}

func TestMachine_PoolModeAccentRouting(t *testing.T) {
	bar := config.Normalize(nil, config.PartialConfig{
		Bars: []config.PartialBar{{
			Meter:        model.Meter{N: 4, D: 4},
			Subdivisions: []int{3, 3, 3, 3},
			Groups:       []int{4, 4, 4},
		}},
	}, config.DefaultOptions()).Bars[0]

	m := NewMachine(model.EngineConfig{Tempo: 120, Bars: []model.Bar{bar}, Loop: true})
	assert.True(t, m.Cache().PoolMode)
	assert.Equal(t, model.BarStrong, m.SlotAccent(0, 0, 0))
	assert.Equal(t, model.GroupMedium, m.SlotAccent(1, 1, 4))
}
