package push

import (
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/oto/v2"
)

// OtoHost adapts an oto/v2 context/player pair to the PCMHost interface.
// oto is pull-based (its player drains an io.Reader on its own goroutine);
// Write bridges that to push's blocking-write contract with an io.Pipe,
// the same shape the teacher's audio.Engine uses for its audioStream.
type OtoHost struct {
	ctx    *oto.Context
	player oto.Player

	pw *io.PipeWriter

	mu     sync.Mutex
	paused bool
}

// NewOtoHost opens an oto playback context at sampleRate (mono, 16-bit
// PCM, matching push's frame encoding) and returns a host writing into
// it. readyCh, if non-nil per oto/v2's NewContext contract, is drained
// internally before returning.
func NewOtoHost(sampleRate int) (*OtoHost, error) {
	ctx, readyCh, err := oto.NewContext(sampleRate, 1, 2)
	if err != nil {
		return nil, fmt.Errorf("push: opening oto context: %w", err)
	}
	<-readyCh

	pr, pw := io.Pipe()
	player := ctx.NewPlayer(pr)

	return &OtoHost{ctx: ctx, player: player, pw: pw}, nil
}

// Write blocks until oto's player goroutine has drained samples from the
// pipe, giving push's synthesis loop natural backpressure.
func (h *OtoHost) Write(samples []byte) (int, error) {
	return h.pw.Write(samples)
}

func (h *OtoHost) Play() {
	h.mu.Lock()
	h.paused = false
	h.mu.Unlock()
	h.player.Play()
}

func (h *OtoHost) Pause() {
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
	h.player.Pause()
}

func (h *OtoHost) Flush() {}

func (h *OtoHost) Stop() {
	h.player.Pause()
	_ = h.pw.Close()
}

func (h *OtoHost) Release() {
	h.Stop()
	_ = h.player.Close()
}

// MinBufferSize returns the byte size of push's internal buffer
// (internalBufferFrames mono 16-bit frames), not a value queried from oto.
func (h *OtoHost) MinBufferSize() int {
	return internalBufferFrames * 2
}
