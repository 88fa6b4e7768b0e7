// Package mixer holds the reference TUI's session state: the bar
// currently selected for editing, and the thin glue between keyboard
// commands and the engine/adapter pipeline underneath.
//
// Grounded on the teacher's mixer.State: a flat struct of UI-selection
// state plus pass-through methods onto the audio engine, generalized
// from an 8-channel volume/pan mixer to a bar/beat/slot rhythm editor.
package mixer

import (
	"polymetro/internal/adapter"
	"polymetro/internal/config"
	"polymetro/internal/engine"
	"polymetro/internal/model"
)

// Session holds everything the TUI needs to render and edit a running
// (or not-yet-started) metronome.
type Session struct {
	Engine  *engine.Engine
	Adapter *adapter.Adapter

	Bars        []config.PartialBar
	SelectedBar int
	Tempo       int
	Loop        bool
	BeatGuide   bool
	MaxSubdiv   int

	LastTick model.TickEvent
	LastBar  int
	LastErr  error
}

// NewSession builds a session with one default 4/4 bar, not yet started.
func NewSession(e *engine.Engine, a *adapter.Adapter, opts config.Options) *Session {
	return &Session{
		Engine:    e,
		Adapter:   a,
		Bars:      []config.PartialBar{{Meter: model.Meter{N: 4, D: 4}}},
		Tempo:     120,
		BeatGuide: false,
		MaxSubdiv: opts.MaxSubdivision,
	}
}

func (s *Session) partial() config.PartialConfig {
	tempo := s.Tempo
	loop := s.Loop
	guide := s.BeatGuide
	return config.PartialConfig{
		Tempo:     &tempo,
		Bars:      s.Bars,
		Loop:      &loop,
		BeatGuide: &guide,
	}
}

// Apply pushes the current session state through the adapter.
func (s *Session) Apply(boundary model.ApplyBoundary) {
	s.Adapter.Apply(s.partial(), boundary)
}

// SelectNext moves selection to the next bar. It stops at the last bar;
// it never adds one.
func (s *Session) SelectNext() {
	if s.SelectedBar < len(s.Bars)-1 {
		s.SelectedBar++
	}
}

// SelectPrev moves selection to the previous bar.
func (s *Session) SelectPrev() {
	if s.SelectedBar > 0 {
		s.SelectedBar--
	}
}

func (s *Session) selected() *config.PartialBar {
	if s.SelectedBar < 0 || s.SelectedBar >= len(s.Bars) {
		return nil
	}
	return &s.Bars[s.SelectedBar]
}

// AdjustTempo changes the global tempo by delta BPM and republishes.
func (s *Session) AdjustTempo(delta int) {
	s.Tempo += delta
	s.Apply(model.Now)
}

// AdjustSubdivision changes the downbeat's subdivision count on the
// selected bar (clamped at [1, MaxSubdiv] by the normalizer).
func (s *Session) AdjustSubdivision(delta int) {
	bar := s.selected()
	if bar == nil {
		return
	}
	if len(bar.Subdivisions) == 0 {
		bar.Subdivisions = []int{1, 1, 1, 1}
	}
	bar.Subdivisions[0] += delta
	if bar.Subdivisions[0] < 1 {
		bar.Subdivisions[0] = 1
	}
	s.Apply(model.NextBar)
}

// ToggleDownbeatMute flips the audibility of slot 0 of beat 0 on the
// selected bar — the nearest rhythm-model analogue of the teacher's
// per-channel mute toggle.
func (s *Session) ToggleDownbeatMute() {
	bar := s.selected()
	if bar == nil {
		return
	}
	// Unset masks mean all-audible; materialize slot 0 so it can be flipped.
	if len(bar.Masks) == 0 {
		bar.Masks = [][]bool{{true}}
	}
	if len(bar.Masks[0]) == 0 {
		bar.Masks[0] = []bool{true}
	}
	bar.Masks[0][0] = !bar.Masks[0][0]
	s.Apply(model.NextBar)
}

// ToggleLoop flips the loop flag.
func (s *Session) ToggleLoop() {
	s.Loop = !s.Loop
	s.Apply(model.Now)
}

// ToggleBeatGuide flips the beat-guide flag.
func (s *Session) ToggleBeatGuide() {
	s.BeatGuide = !s.BeatGuide
	s.Apply(model.Now)
}

// ResetSelectedBar restores the selected bar to a plain 4/4 default.
func (s *Session) ResetSelectedBar() {
	bar := s.selected()
	if bar == nil {
		return
	}
	*bar = config.PartialBar{Meter: model.Meter{N: 4, D: 4}}
	s.Apply(model.NextBar)
}

// TogglePlayback starts the engine from the current session state if
// idle, or stops it if running.
func (s *Session) TogglePlayback() {
	if s.Engine.GetStatus() == model.Running || s.Engine.GetStatus() == model.Starting {
		s.Engine.Stop()
		return
	}
	s.Apply(model.Now)
	// The adapter skips content it has already applied, so a restart after
	// Stop with unchanged settings starts the engine directly.
	if s.Engine.GetStatus() == model.Idle {
		_ = s.Engine.Start(s.Adapter.Current())
	}
}

// Close stops the engine, releasing its audio host.
func (s *Session) Close() {
	s.Engine.Stop()
}
