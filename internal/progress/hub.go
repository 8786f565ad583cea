package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// A harvest run emits at most a few hundred events (one per work unit plus
// one per assembled case), so the defaults below are deliberately modest.
const (
	defaultQueueSize = 512
	defaultBatchCap  = 128
	defaultBatchWait = 250 * time.Millisecond
	defaultSinkWait  = 5 * time.Second
	dropLogEvery     = 5 * time.Second
)

// Config tunes the Hub's queueing and delivery. Zero values take the
// defaults above.
type Config struct {
	// BufferSize caps the queue between emitters and the delivery goroutine.
	BufferSize int
	// MaxBatchEvents delivers a batch once it holds this many events.
	MaxBatchEvents int
	// MaxBatchWait delivers a partial batch after this much idle time.
	MaxBatchWait time.Duration
	// SinkTimeout bounds each sink call during delivery.
	SinkTimeout time.Duration
	// BaseContext is the parent of sink contexts; nil means Background.
	BaseContext context.Context
	// Logger receives drop and sink-failure warnings.
	Logger *zap.Logger
}

func (c *Config) fillDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultQueueSize
	}
	if c.MaxBatchEvents <= 0 {
		c.MaxBatchEvents = defaultBatchCap
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = defaultBatchWait
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkWait
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Hub queues Events from the coordinator and pipeline and delivers them in
// batches to the configured sinks from a single background goroutine. Emit
// never blocks, so a slow sink cannot stall a harvest pass.
type Hub struct {
	cfg   Config
	sinks []Sink

	in   chan Event
	quit chan struct{}
	done chan struct{}

	closing  atomic.Bool
	dropped  atomic.Int64
	lastDrop atomic.Int64

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the delivery goroutine over the given sinks and returns a
// Hub ready for Emit.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	cfg.fillDefaults()
	h := &Hub{
		cfg:   cfg,
		sinks: append([]Sink(nil), sinks...),
		in:    make(chan Event, cfg.BufferSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go h.loop()
	return h
}

// Emit queues one event without blocking. Malformed events are discarded,
// and when the queue is full the event is dropped with a throttled warning.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closing.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.cfg.Logger.Debug("ignoring malformed progress event", zap.Error(err))
		return
	}
	select {
	case h.in <- evt:
	default:
		h.noteDrop()
	}
}

// noteDrop counts discarded events and logs the running total at most once
// per dropLogEvery.
func (h *Hub) noteDrop() {
	h.dropped.Add(1)
	now := time.Now().UnixNano()
	last := h.lastDrop.Load()
	if now-last < dropLogEvery.Nanoseconds() || !h.lastDrop.CompareAndSwap(last, now) {
		return
	}
	h.cfg.Logger.Warn("progress queue full, events discarded",
		zap.Int64("discarded", h.dropped.Swap(0)))
}

// Close stops intake, delivers whatever is still queued, closes the sinks,
// and waits for the delivery goroutine to exit. Extra calls are no-ops.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closing.Store(true)
		h.closeCtx = ctx
		close(h.quit)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close progress hub: %w", ctx.Err())
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	var (
		batch []Event
		tick  *time.Timer
		due   <-chan time.Time
	)
	for {
		select {
		case evt := <-h.in:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.MaxBatchEvents {
				h.deliver(batch)
				batch = nil
				due = nil
			} else if due == nil {
				tick = time.NewTimer(h.cfg.MaxBatchWait)
				due = tick.C
			}
		case <-due:
			h.deliver(batch)
			batch = nil
			due = nil
		case <-h.quit:
			if tick != nil {
				tick.Stop()
			}
			h.deliver(h.drain(batch))
			h.closeSinks()
			return
		}
	}
}

// drain empties whatever Emit managed to queue before the closing flag took
// effect.
func (h *Hub) drain(batch []Event) []Event {
	for {
		select {
		case evt := <-h.in:
			batch = append(batch, evt)
		default:
			return batch
		}
	}
}

func (h *Hub) deliver(batch []Event) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.cfg.Logger.Warn("progress sink rejected batch", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.cfg.Logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
