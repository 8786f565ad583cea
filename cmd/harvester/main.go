// Package main is the harvester CLI: batch pipeline runs, operator resume,
// report regeneration, and the status API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/texapp/opinion-harvester/internal/app"
	"github.com/texapp/opinion-harvester/internal/config"
	"github.com/texapp/opinion-harvester/internal/harvest"
	"github.com/texapp/opinion-harvester/internal/store"
)

const usageText = `Usage: harvester [-config path] <command> [flags]

Commands:
  auto                        run the full pipeline for the previous business day
  run     -period YYYY-MM-DD  run the full pipeline for one docket date
  harvest -period YYYY-MM-DD [-from YYYY-MM-DD]
                              harvest only, over a date range
  resume  -run <id>           resume an interrupted or failed run
  report  -period YYYY-MM-DD  regenerate the period report
  status  [-period YYYY-MM-DD]
                              print run and ledger state
  serve                       serve the status API
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("harvester", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	cfgPath := global.String("config", "", "path to config file")
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return 2
	}
	command, cmdArgs := rest[0], rest[1:]

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		}
	}()
	zap.ReplaceGlobals(a.Logger())

	switch command {
	case "auto":
		return cmdAuto(ctx, a, cmdArgs)
	case "run":
		return cmdRun(ctx, a, cmdArgs)
	case "harvest":
		return cmdHarvest(ctx, a, cmdArgs)
	case "resume":
		return cmdResume(ctx, a, cmdArgs)
	case "report":
		return cmdReport(a, cmdArgs)
	case "status":
		return cmdStatus(ctx, a, cmdArgs)
	case "serve":
		return cmdServe(ctx, a, cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		global.Usage()
		return 2
	}
}

func cmdAuto(ctx context.Context, a *app.App, args []string) int {
	fs := flag.NewFlagSet("auto", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	period := a.Calendar().PreviousBusinessDay(time.Now().UTC())
	return executeRun(ctx, a, period)
}

func cmdRun(ctx context.Context, a *app.App, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	periodFlag := fs.String("period", "", "docket date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	period, ok := parsePeriod(fs, *periodFlag)
	if !ok {
		return 2
	}
	return executeRun(ctx, a, period)
}

func executeRun(ctx context.Context, a *app.App, period time.Time) int {
	run, err := a.Pipeline().Run(ctx, period)
	printRun(run)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		return 1
	}
	return 0
}

func cmdHarvest(ctx context.Context, a *app.App, args []string) int {
	fs := flag.NewFlagSet("harvest", flag.ContinueOnError)
	periodFlag := fs.String("period", "", "docket date (YYYY-MM-DD)")
	fromFlag := fs.String("from", "", "range start (YYYY-MM-DD), defaults to -period")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	period, ok := parsePeriod(fs, *periodFlag)
	if !ok {
		return 2
	}
	from := period
	if *fromFlag != "" {
		if from, ok = parsePeriod(fs, *fromFlag); !ok {
			return 2
		}
	}
	if from.After(period) {
		fmt.Fprintln(os.Stderr, "-from must not be after -period")
		return 2
	}

	totals, err := a.Coordinator().HarvestRange(ctx, from, period)
	fmt.Printf("harvested %d units: %d cases, %d files\n",
		totals.Sources, totals.Cases, totals.Files)
	if err != nil {
		fmt.Fprintf(os.Stderr, "harvest interrupted: %v\n", err)
		return 1
	}
	return 0
}

func cmdResume(ctx context.Context, a *app.App, args []string) int {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	runID := fs.String("run", "", "run id to resume")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *runID == "" {
		fmt.Fprintln(os.Stderr, "-run is required")
		fs.Usage()
		return 2
	}

	run, err := a.Pipeline().Resume(ctx, *runID)
	printRun(run)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resume failed: %v\n", err)
		return 1
	}
	return 0
}

func cmdReport(a *app.App, args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	periodFlag := fs.String("period", "", "docket date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	period, ok := parsePeriod(fs, *periodFlag)
	if !ok {
		return 2
	}

	path, err := a.Reporter().Generate(period)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
		return 1
	}
	if path == "" {
		fmt.Printf("no artifacts for %s, nothing to report\n", period.Format("2006-01-02"))
		return 0
	}
	fmt.Printf("report written to %s\n", path)
	return 0
}

func cmdStatus(ctx context.Context, a *app.App, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	periodFlag := fs.String("period", "", "docket date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *periodFlag == "" {
		runs, err := a.Runs().List(ctx, 10)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list runs failed: %v\n", err)
			return 1
		}
		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return 0
		}
		for _, run := range runs {
			printRun(run)
		}
		return 0
	}

	period, ok := parsePeriod(fs, *periodFlag)
	if !ok {
		return 2
	}
	runs, err := a.Runs().ListByPeriod(ctx, period)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list runs failed: %v\n", err)
		return 1
	}
	for _, run := range runs {
		printRun(run)
	}
	entries, err := a.Ledger().EntriesByDate(ctx, period)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledger query failed: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Printf("no ledger entries for %s\n", period.Format("2006-01-02"))
		return 0
	}
	for _, entry := range entries {
		fmt.Printf("  %s  %-24s cases=%d files=%d\n",
			entry.Key, entry.Status, entry.Cases, entry.Files)
	}
	if unit, ok, err := a.Ledger().LastCompleted(ctx); err == nil && ok {
		next := a.Calendar().NextPosition(unit, a.Config().Harvest.Sources)
		fmt.Printf("next position: %s\n", next.Key())
	}
	return 0
}

func cmdServe(ctx context.Context, a *app.App, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := a.Logger()
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config().Server.Port),
		Handler:           a.APIServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("status api started", zap.Int("port", a.Config().Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server error", zap.Error(err))
		return 1
	}

	logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}

func parsePeriod(fs *flag.FlagSet, value string) (time.Time, bool) {
	if value == "" {
		fmt.Fprintln(os.Stderr, "-period is required")
		fs.Usage()
		return time.Time{}, false
	}
	period, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid date %q, want YYYY-MM-DD\n", value)
		return time.Time{}, false
	}
	return harvest.Day(period), true
}

func printRun(run store.Run) {
	if run.ID == "" {
		return
	}
	line := fmt.Sprintf("run %s  period=%s  phase=%s  sources=%d cases=%d files=%d",
		run.ID, run.Period.Format("2006-01-02"), run.Phase,
		run.SourcesChecked, run.CasesFound, run.FilesProduced)
	if run.ReportPath != "" {
		line += "  report=" + run.ReportPath
	}
	if run.Error != "" {
		line += "  error=" + run.Error
	}
	fmt.Println(line)
}
