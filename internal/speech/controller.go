package speech

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pocketlabs/pocket-core/internal/config"
)

// Controller owns speech output: it queues phrases, plays them through a
// single worker in arrival order, and cancels instantly on demand. Cancel
// clears the queue, aborts the in-flight synthesis, and resets the sink so
// buffered audio stops instead of draining.
type Controller struct {
	synth Synthesizer
	sink  Sink
	voice string
	log   *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []SynthRequest
	epoch    uint64
	busy     bool
	speaking bool
	abort    context.CancelFunc
	closed   bool
	onState  func(sessionID string, speaking bool)
	stateQ   []stateChange

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func NewController(ctx context.Context, cfg config.TTSConfig, synth Synthesizer, sink Sink, logger *slog.Logger) *Controller {
	cctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		synth: synth,
		sink:  sink,
		voice: cfg.Voice,
		log:   logger.With(slog.String("component", "speech-controller")),
		ctx:   cctx,
		stop:  cancel,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// OnState registers the speaking-state callback. Set before Start.
func (c *Controller) OnState(fn func(sessionID string, speaking bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

type stateChange struct {
	sessionID string
	speaking  bool
}

func (c *Controller) Start() {
	c.wg.Add(2)
	go c.run()
	go c.dispatchStates()
}

func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.queue = nil
	if c.abort != nil {
		c.abort()
	}
	c.cond.Broadcast()
	c.mu.Unlock()
	c.stop()
	c.wg.Wait()
}

// Epoch returns the current cancellation epoch. A session captures it once
// at start and stamps every Enqueue with it; Cancel advances the epoch, so a
// phrase that raced past its session's cancellation is rejected instead of
// playing into the next session.
func (c *Controller) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Enqueue adds one phrase to the playback queue. Phrases stamped with an
// epoch older than the last Cancel are dropped.
func (c *Controller) Enqueue(epoch uint64, sessionID, text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || epoch != c.epoch {
		return
	}
	c.queue = append(c.queue, SynthRequest{SessionID: sessionID, Text: text, Voice: c.voice})
	c.cond.Broadcast()
}

// Cancel stops playback now: queue cleared, in-flight synthesis aborted,
// sink reset, epoch advanced. Safe to call when nothing is playing. Returns
// whether any speech was actually interrupted.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	active := c.busy || len(c.queue) > 0
	c.queue = nil
	c.epoch++
	if c.abort != nil {
		c.abort()
	}
	c.cond.Broadcast()
	c.mu.Unlock()

	if active {
		c.sink.Reset()
	}
	return active
}

// Speaking reports whether audio is currently being produced.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Wait blocks until the queue drains and playback finishes, or ctx ends.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-done:
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	for (c.busy || len(c.queue) > 0) && ctx.Err() == nil && !c.closed {
		c.cond.Wait()
	}
	return ctx.Err()
}

func (c *Controller) run() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.setSpeakingLocked("", false)
			c.cond.Broadcast()
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		req := c.queue[0]
		c.queue = c.queue[1:]
		pctx, cancel := context.WithCancel(c.ctx)
		c.abort = cancel
		c.busy = true
		c.setSpeakingLocked(req.SessionID, true)
		c.mu.Unlock()

		c.playPhrase(pctx, req)

		c.mu.Lock()
		cancel()
		c.abort = nil
		c.busy = false
		c.cond.Broadcast()
		c.mu.Unlock()
	}
}

func (c *Controller) playPhrase(ctx context.Context, req SynthRequest) {
	chunks, errs := c.synth.Synthesize(ctx, req)
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if err := c.sink.Write(chunk); err != nil {
				c.log.Warn("sink write failed", slog.String("error", err.Error()))
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && ctx.Err() == nil {
				c.log.Warn("synthesis failed",
					slog.String("session_id", req.SessionID),
					slog.String("error", err.Error()))
			}
		}
	}
}

func (c *Controller) setSpeakingLocked(sessionID string, speaking bool) {
	if c.speaking == speaking {
		return
	}
	c.speaking = speaking
	if c.onState != nil {
		c.stateQ = append(c.stateQ, stateChange{sessionID: sessionID, speaking: speaking})
		c.cond.Broadcast()
	}
}

// dispatchStates delivers speaking-state changes to the callback one at a
// time, in the order they occurred.
func (c *Controller) dispatchStates() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		for len(c.stateQ) == 0 && !c.closed {
			c.cond.Wait()
		}
		if len(c.stateQ) == 0 {
			c.mu.Unlock()
			return
		}
		change := c.stateQ[0]
		c.stateQ = c.stateQ[1:]
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(change.sessionID, change.speaking)
		}
	}
}
