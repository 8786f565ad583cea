package progress

import "context"

// Sink receives delivered event batches. Consume runs on the Hub's delivery
// goroutine, may be called many times before Close, and must honor the
// context deadline. Sinks must not mutate the batch.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter is the write side of the Hub. The coordinator and pipeline accept
// this interface so tests can record events without a running Hub.
type Emitter interface {
	Emit(evt Event)
}
