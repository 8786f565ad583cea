package sinks

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/texapp/opinion-harvester/internal/progress"
)

// PrometheusSink exports pipeline progress metrics. It owns all collectors
// for runs, work units, and assembled cases.
type PrometheusSink struct {
	runsStarted    prometheus.Counter
	runsFinished   *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	phaseChanges   *prometheus.CounterVec
	unitsHandled   *prometheus.CounterVec
	unitDuration   prometheus.Histogram
	casesAssembled prometheus.Counter
	casesFailed    prometheus.Counter
	filesProduced  prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_runs_started_total",
			Help: "Total pipeline runs started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_runs_finished_total",
			Help: "Total pipeline runs finished, partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}, []string{"result"}),
		phaseChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_phase_changes_total",
			Help: "Phase transitions, partitioned by target phase.",
		}, []string{"phase"}),
		unitsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_units_handled_total",
			Help: "Work units handled, partitioned by outcome.",
		}, []string{"outcome"}),
		unitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvester_unit_duration_seconds",
			Help:    "Wall time per harvested work unit.",
			Buckets: []float64{0.5, 1, 2, 5, 15, 30, 60, 120, 300},
		}),
		casesAssembled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_cases_assembled_total",
			Help: "Case groups assembled into artifacts.",
		}),
		casesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_cases_failed_total",
			Help: "Case groups with no retrievable fragments.",
		}),
		filesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_files_produced_total",
			Help: "Artifact files produced.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsFinished,
		s.runDuration,
		s.phaseChanges,
		s.unitsHandled,
		s.unitDuration,
		s.casesAssembled,
		s.casesFailed,
		s.filesProduced,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageRunDone:
		s.finishRun(evt, "success")
	case progress.StageRunError:
		s.finishRun(evt, "error")
	case progress.StagePhaseChange:
		s.phaseChanges.WithLabelValues(evt.Phase).Inc()
	case progress.StageUnitSkipped:
		s.unitsHandled.WithLabelValues("skipped").Inc()
	case progress.StageUnitDone:
		s.unitsHandled.WithLabelValues(unitOutcome(evt.Status)).Inc()
		if evt.Dur > 0 {
			s.unitDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageCaseAssembled:
		s.casesAssembled.Inc()
		s.filesProduced.Add(float64(evt.Files))
	case progress.StageCaseFailed:
		s.casesFailed.Inc()
	}
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsFinished.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

func unitOutcome(status string) string {
	switch {
	case status == "":
		return "completed"
	case strings.HasPrefix(status, "error:"):
		return "error"
	default:
		return status
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
