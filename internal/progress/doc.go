// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces the pipeline uses to report its work: run lifecycle,
// phase changes, work-unit completions, and case assemblies. It batches
// events on a background goroutine and fans them out to pluggable sinks such
// as Prometheus metrics or a recent-activity ring.
package progress
