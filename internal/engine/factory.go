package engine

import (
	"fmt"

	"polymetro/internal/model"
	"polymetro/internal/pull"
	"polymetro/internal/push"
)

// NewPushWorkerFactory builds a WorkerFactory that opens a fresh oto
// playback context per start() and drives it with a push.Synthesizer.
func NewPushWorkerFactory(sampleRate int) WorkerFactory {
	return func(initial model.EngineConfig) (worker, error) {
		host, err := push.NewOtoHost(sampleRate)
		if err != nil {
			return nil, fmt.Errorf("opening PCM host: %w", err)
		}
		return push.NewSynthesizer(initial, host, sampleRate), nil
	}
}

// NewPullWorkerFactory builds a WorkerFactory over an already-constructed
// callback-timeline host (there is no Go-native implementation in this
// repo; callers supply one, e.g. a browser bridge or a test fake).
func NewPullWorkerFactory(host pull.CallbackTimelineHost) WorkerFactory {
	return func(initial model.EngineConfig) (worker, error) {
		return pull.NewScheduler(initial, host), nil
	}
}
