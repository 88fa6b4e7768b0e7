// Package adapter stabilizes caller-supplied configuration. A UI layer
// (or any upstream render loop) tends to hand back freshly-allocated
// slices on every render even when their content hasn't changed; the
// adapter content-hashes the normalized result and only forwards to the
// facade when the fingerprint actually moves, deep-cloning at the
// boundary so the facade's worker never aliases a caller-owned array.
package adapter

import (
	"polymetro/internal/config"
	"polymetro/internal/model"
)

// Facade is the subset of internal/engine.Engine the adapter drives.
type Facade interface {
	Start(model.EngineConfig) error
	Update(partial config.PartialConfig, boundary model.ApplyBoundary)
	GetStatus() model.State
}

// Adapter sits in front of a Facade, deduplicating by content fingerprint.
type Adapter struct {
	facade      Facade
	opts        config.Options
	lastFP      uint64
	haveApplied bool
	current     model.EngineConfig
}

// New builds an adapter over facade using opts for normalization.
func New(facade Facade, opts config.Options) *Adapter {
	return &Adapter{facade: facade, opts: opts}
}

// Apply normalizes partial against the adapter's own last-applied
// config, deep-clones the result, and forwards it to the facade only if
// its fingerprint differs from the last one actually applied. If the
// facade is not yet running, Apply calls Start; otherwise Update at
// boundary.
func (a *Adapter) Apply(partial config.PartialConfig, boundary model.ApplyBoundary) {
	var prev *model.EngineConfig
	if a.haveApplied {
		prev = &a.current
	}
	normalized := config.Normalize(prev, partial, a.opts)

	if a.haveApplied && normalized.Fingerprint == a.lastFP {
		return
	}

	cloned := normalized.Clone()
	a.current = cloned
	a.lastFP = cloned.Fingerprint
	a.haveApplied = true

	if a.facade.GetStatus() == model.Running || a.facade.GetStatus() == model.Starting {
		a.facade.Update(config.ToPartial(cloned), boundary)
		return
	}
	_ = a.facade.Start(cloned)
}

// Current returns a deep clone of the last config actually applied, so
// callers inspecting it cannot race with the facade's worker.
func (a *Adapter) Current() model.EngineConfig {
	return a.current.Clone()
}
