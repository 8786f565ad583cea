// Package app assembles the harvester's long-lived services from
// configuration. It is the single place where concrete backends are chosen
// and wired; everything downstream depends on interfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/texapp/opinion-harvester/internal/analyze"
	"github.com/texapp/opinion-harvester/internal/api"
	"github.com/texapp/opinion-harvester/internal/artifacts"
	"github.com/texapp/opinion-harvester/internal/artifacts/gcs"
	"github.com/texapp/opinion-harvester/internal/assemble"
	"github.com/texapp/opinion-harvester/internal/clock/system"
	"github.com/texapp/opinion-harvester/internal/config"
	"github.com/texapp/opinion-harvester/internal/coordinator"
	"github.com/texapp/opinion-harvester/internal/docket"
	"github.com/texapp/opinion-harvester/internal/fetch"
	"github.com/texapp/opinion-harvester/internal/fetch/headless"
	"github.com/texapp/opinion-harvester/internal/harvest"
	"github.com/texapp/opinion-harvester/internal/hash/sha256"
	"github.com/texapp/opinion-harvester/internal/id/uuid"
	"github.com/texapp/opinion-harvester/internal/logging"
	"github.com/texapp/opinion-harvester/internal/notify"
	"github.com/texapp/opinion-harvester/internal/pdf"
	"github.com/texapp/opinion-harvester/internal/pipeline"
	"github.com/texapp/opinion-harvester/internal/progress"
	"github.com/texapp/opinion-harvester/internal/progress/sinks"
	"github.com/texapp/opinion-harvester/internal/report"
	"github.com/texapp/opinion-harvester/internal/storage"
	"github.com/texapp/opinion-harvester/internal/store"
)

const recentEventCapacity = 256

// App holds the wired services for one harvester process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry

	ledger store.Ledger
	runs   store.Runs

	hub    *progress.Hub
	recent *sinks.RecentSink

	coord    *coordinator.Coordinator
	pipe     *pipeline.Pipeline
	reporter *report.Writer
	calendar harvest.Calendar

	closers []func() error
}

// New builds the full service graph from cfg. Callers must Close the App
// when done; New cleans up after itself on failure.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		calendar: harvest.NewCalendar(),
	}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	if err := a.wire(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.cfg

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ledger, runs, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.ledger, a.runs = ledger, runs
	a.closers = append(a.closers, closeStore)

	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("register progress metrics: %w", err)
	}
	a.recent = sinks.NewRecentSink(recentEventCapacity)
	a.hub = progress.NewHub(
		progress.Config{Logger: a.logger},
		sinks.NewLogSink(a.logger),
		promSink,
		a.recent,
	)

	pacer := harvest.NewPacer(1, 1)
	client := fetch.NewClient(fetch.ClientConfig{
		UserAgent: cfg.Harvest.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	var renderer fetch.Renderer
	if cfg.Headless.Enabled {
		r, err := headless.New(headless.Config{
			MaxParallel: cfg.Headless.MaxParallel,
			UserAgent:   cfg.Harvest.UserAgent,
			NavTimeout:  time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("start headless renderer: %w", err)
		}
		a.closers = append(a.closers, func() error { r.Close(); return nil })
		renderer = r
	}

	hosts, err := allowedHosts(cfg)
	if err != nil {
		return err
	}
	policy := harvest.NewExponentialRetryPolicy(cfg.Fetch.MaxRetries, cfg.BackoffBase())
	engine := fetch.NewEngine(fetch.EngineConfig{
		AllowedHosts:  hosts,
		BodyThreshold: cfg.Headless.PromotionThresh,
	}, client, renderer, policy, pacer, pacer, a.logger)

	parser, err := docket.NewParser(cfg.Harvest.BaseURL)
	if err != nil {
		return fmt.Errorf("build docket parser: %w", err)
	}

	artStore, err := artifacts.NewStore(cfg.Artifacts.Root)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}

	var mirror assemble.Mirror
	if cfg.Artifacts.GCSBucket != "" {
		gcsClient, err := gstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, gcsClient.Close)
		m, err := gcs.New(gcsClient, cfg.Artifacts.GCSBucket, cfg.Artifacts.GCSPrefix)
		if err != nil {
			return fmt.Errorf("configure gcs mirror: %w", err)
		}
		mirror = m
	}

	clk := system.New()
	assembler := assemble.New(assemble.Config{
		FragmentDelay: cfg.CaseDelay(),
	}, engine, pdf.NewMerger(), sha256.New(), artStore, mirror, pacer, a.logger)

	a.coord = coordinator.New(coordinator.Config{
		BaseURL:   cfg.Harvest.BaseURL,
		Courts:    cfg.Harvest.Sources,
		CaseDelay: cfg.CaseDelay(),
		UnitDelay: cfg.SourceDelay(),
	}, ledger, engine, parser, assembler, pacer, a.hub, clk, a.logger)

	reporter, err := report.NewWriter(artStore, cfg.Report.Dir, a.logger)
	if err != nil {
		return fmt.Errorf("open report dir: %w", err)
	}
	a.reporter = reporter

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Enabled {
		ps, err := notify.NewPubSub(ctx, cfg.Notify.ProjectID, cfg.Notify.TopicName)
		if err != nil {
			return fmt.Errorf("connect pubsub: %w", err)
		}
		a.closers = append(a.closers, ps.Close)
		notifier = ps
	}

	batch := analyze.NewBatch(artStore, analyze.NewSummarizer(), clk, a.logger)
	a.pipe = pipeline.New(runs, a.coord, batch, reporter, notifier, uuid.New(), clk, a.hub, a.logger)
	return nil
}

// allowedHosts derives the fetch host allowlist from the base URL plus any
// configured extras.
func allowedHosts(cfg config.Config) ([]string, error) {
	u, err := url.Parse(cfg.Harvest.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("harvest.base_url has no host: %q", cfg.Harvest.BaseURL)
	}
	hosts := append([]string{u.Hostname()}, cfg.Fetch.ExtraAllowedHosts...)
	return hosts, nil
}

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Pipeline returns the run state machine.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipe
}

// Coordinator returns the harvest coordinator for ledger-only invocations.
func (a *App) Coordinator() *coordinator.Coordinator {
	return a.coord
}

// Reporter returns the period report writer.
func (a *App) Reporter() *report.Writer {
	return a.reporter
}

// Ledger returns the work-unit ledger.
func (a *App) Ledger() store.Ledger {
	return a.ledger
}

// Runs returns the run record store.
func (a *App) Runs() store.Runs {
	return a.runs
}

// Calendar returns the business-day calendar.
func (a *App) Calendar() harvest.Calendar {
	return a.calendar
}

// APIServer builds the status HTTP surface over the wired stores.
func (a *App) APIServer() *api.Server {
	return api.NewServer(a.ledger, a.runs, a.recent, a.registry, a.logger)
}

// Close flushes the progress hub and releases backends in reverse wiring
// order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
