package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/texapp/opinion-harvester/internal/progress"
)

// LogSink emits structured logs for pipeline progress. It is useful during
// development or audits where no metrics backend is available.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("stage", string(evt.Stage)),
			zap.Time("ts", evt.TS),
		}
		if evt.RunID != "" {
			fields = append(fields, zap.String("run_id", evt.RunID))
		}
		if evt.Unit != "" {
			fields = append(fields, zap.String("unit", evt.Unit))
		}
		if evt.Case != "" {
			fields = append(fields, zap.String("case", evt.Case))
		}
		if evt.Phase != "" {
			fields = append(fields, zap.String("phase", evt.Phase))
		}
		if evt.Status != "" {
			fields = append(fields, zap.String("status", evt.Status))
		}
		if evt.Cases > 0 || evt.Files > 0 {
			fields = append(fields, zap.Int("cases", evt.Cases), zap.Int("files", evt.Files))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
