// Copyright 2025 James Ross
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flyingrobots/nginx-log-etl/internal/adminops"
	"github.com/flyingrobots/nginx-log-etl/internal/batchproc"
	"github.com/flyingrobots/nginx-log-etl/internal/breaker"
	"github.com/flyingrobots/nginx-log-etl/internal/config"
	"github.com/flyingrobots/nginx-log-etl/internal/discovery"
	"github.com/flyingrobots/nginx-log-etl/internal/enrich"
	"github.com/flyingrobots/nginx-log-etl/internal/obs"
	"github.com/flyingrobots/nginx-log-etl/internal/statestore"
	"github.com/flyingrobots/nginx-log-etl/internal/warehouse"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var (
		configPath      string
		logDir          string
		date            string
		all             bool
		mode            string
		force           bool
		limit           int
		batchSize       int
		workers         int
		autoMonitor     bool
		monitorDuration time.Duration
		refreshMinutes  float64
		refreshCron     string
		statusFlag      bool
		resetFailed     bool
		testRun         bool
		stateBackend    string
		classifyRules   string
		showVersion     bool
	)

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&logDir, "log-dir", "", "Root directory of nginx access logs (overrides discovery.log_dir)")
	fs.StringVar(&date, "date", "", "Restrict to a single date partition (YYYYMMDD or YYYY-MM-DD)")
	fs.BoolVar(&all, "all", false, "Process every discovered file regardless of date")
	fs.StringVar(&mode, "mode", "once", "Run mode: once|daemon")
	fs.BoolVar(&force, "force", false, "Skip stabilization and re-process completed files")
	fs.IntVar(&limit, "limit", 0, "Cap records processed per file (0 = unlimited)")
	fs.IntVar(&batchSize, "batch-size", 0, "Override batch.size")
	fs.IntVar(&workers, "workers", 0, "Override worker.count")
	fs.BoolVar(&autoMonitor, "auto-monitor", false, "In daemon mode, stop automatically after --monitor-duration")
	fs.DurationVar(&monitorDuration, "monitor-duration", 0, "Wall-clock budget for daemon mode (0 = unbounded)")
	fs.Float64Var(&refreshMinutes, "refresh-minutes", 0, "Override discovery.refresh_minutes")
	fs.StringVar(&refreshCron, "refresh-cron", "", "Cron expression for daemon refresh interval, overrides --refresh-minutes")
	fs.BoolVar(&statusFlag, "status", false, "Print state store contents and exit; do not process")
	fs.BoolVar(&resetFailed, "reset-failed", false, "Transition failed files back to pending and exit")
	fs.BoolVar(&testRun, "test", false, "Dry run: parse+enrich, never insert")
	fs.StringVar(&stateBackend, "state-backend", "", "Override state_store.backend: json|sqlite")
	fs.StringVar(&classifyRules, "classify-rules", "", "Path to an override classification rules YAML")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}
	applyOverrides(cfg, logDir, batchSize, workers, refreshMinutes, refreshCron, stateBackend, classifyRules)

	logger, err := obs.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFile,
		cfg.Observability.LogMaxSizeMB, cfg.Observability.LogMaxBackups, cfg.Observability.LogMaxAgeDays)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	store, err := openStateStore(cfg)
	if err != nil {
		logger.Error("state store init failed", obs.Err(err))
		os.Exit(3)
	}
	defer store.Close()

	scope := resolveDateScope(cfg, date)

	if statusFlag {
		runStatus(context.Background(), store, scope)
		return
	}
	if resetFailed {
		runResetFailed(context.Background(), store, scope, logger)
		return
	}

	wh, err := openWarehouse(cfg, logger)
	if err != nil {
		logger.Error("warehouse init failed", obs.Err(err))
		os.Exit(3)
	}
	defer wh.Close()

	if err := wh.ExecDDL(context.Background(), warehouse.BootstrapDDL(cfg.Warehouse.Database)); err != nil {
		logger.Error("warehouse bootstrap ddl failed", obs.Err(err))
		os.Exit(3)
	}

	rules, err := enrich.LoadRules(classifyRules)
	if err != nil {
		logger.Error("classification rules load failed", obs.Err(err))
		os.Exit(2)
	}
	enrichCfg := enrich.NewConfig(cfg.Enrich.SuccessStatuses, cfg.Enrich.SlowThreshold.Seconds(), cfg.Enrich.SpeedCapKBPerSec, rules)

	summary := obs.NewRunSummary()
	proc := &batchproc.Processor{
		Store:           store,
		Warehouse:       wh,
		EnrichCfg:       enrichCfg,
		Breaker:         breaker.New(cfg.CircuitBreaker.Window, cfg.CircuitBreaker.CooldownPeriod, cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.MinSamples),
		Log:             logger,
		Summary:         summary,
		StabilizeWindow: cfg.Discovery.StabilizeSeconds,
		BatchRows:       cfg.Batch.Size,
		BatchLines:      cfg.Batch.LineSoftCap,
		FlushEvery:      cfg.Batch.FlushEvery,
	}

	workerCount := cfg.Worker.Count
	sched := discovery.NewScheduler(proc, workerCount, logger)

	httpSrv := obs.StartHTTPServer(cfg, func(c context.Context) error { return wh.Ping(c) })
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	reclaimer := statestore.NewStaleReclaimer(store, cfg.Discovery.StaleAfter, cfg.Discovery.StaleAfter/4, logger)
	go reclaimer.Run(ctx)

	opts := batchproc.ProcessOptions{Force: force, DryRun: testRun, LineLimit: limit}

	exitCode := 0
	switch mode {
	case "daemon":
		include, exclude := cfg.Discovery.IncludeGlobs, cfg.Discovery.ExcludeGlobs
		d := &discovery.Daemon{
			Root:         cfg.Discovery.LogDir,
			Include:      include,
			Exclude:      exclude,
			Scheduler:    sched,
			Log:          logger,
			LockPath:     filepath.Join(cfg.Discovery.LogDir, ".etl.lock"),
			RefreshEvery: time.Duration(cfg.Discovery.RefreshMinutes * float64(time.Minute)),
			RefreshCron:  cfg.Discovery.RefreshCron,
			Options:      opts,
		}
		if autoMonitor {
			d.MonitorFor = monitorDuration
		}
		if err := d.Run(ctx); err != nil {
			logger.Error("daemon exited with error", obs.Err(err))
			exitCode = 3
		}
	default:
		files, err := discoverOnce(cfg, date, all)
		if err != nil {
			logger.Error("discovery failed", obs.Err(err))
			os.Exit(3)
		}
		obs.FilesDiscovered.Add(float64(len(files)))
		results := sched.Run(ctx, files, opts)
		summary.FilesDiscovered = len(files)
		for _, r := range results {
			switch {
			case r.Skipped != "":
				summary.FilesSkippedDone++
			case r.Failed:
				exitCode = 1
			}
		}
	}

	summary.WriteTo(os.Stdout)
	os.Exit(exitCode)
}

func applyOverrides(cfg *config.Config, logDir string, batchSize, workers int, refreshMinutes float64, refreshCron, stateBackend, classifyRules string) {
	if logDir != "" {
		cfg.Discovery.LogDir = logDir
	}
	if batchSize > 0 {
		cfg.Batch.Size = batchSize
	}
	if workers > 0 {
		cfg.Worker.Count = workers
	}
	if refreshMinutes > 0 {
		cfg.Discovery.RefreshMinutes = refreshMinutes
	}
	if refreshCron != "" {
		cfg.Discovery.RefreshCron = refreshCron
	}
	if stateBackend != "" {
		cfg.StateStore.Backend = stateBackend
	}
	if classifyRules != "" {
		cfg.Enrich.RulesPath = classifyRules
	}
}

func openStateStore(cfg *config.Config) (statestore.Store, error) {
	switch cfg.StateStore.Backend {
	case "sqlite":
		return statestore.NewSQLiteStore(cfg.StateStore.Path)
	default:
		return statestore.NewJSONStore(cfg.StateStore.Path)
	}
}

func openWarehouse(cfg *config.Config, logger *zap.Logger) (warehouse.Client, error) {
	dsn := fmt.Sprintf("%s:%d", cfg.Warehouse.Host, cfg.Warehouse.Port)
	return warehouse.NewClickHouseClient(warehouse.Config{
		DSN:             dsn,
		Database:        cfg.Warehouse.Database,
		User:            cfg.Warehouse.User,
		Password:        cfg.Warehouse.Password,
		MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
		MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
		ConnMaxLife:     cfg.Warehouse.ConnMaxLifetime,
		DialTimeout:     cfg.Warehouse.DialTimeout,
		InsertTimeout:   cfg.Warehouse.InsertTimeout,
		RetryBase:       cfg.Backoff.Base,
		RetryMax:        cfg.Backoff.Max,
		RetryMaxRetries: cfg.Backoff.MaxRetries,
	}, logger)
}

func discoverOnce(cfg *config.Config, date string, all bool) ([]discovery.LogFile, error) {
	files, err := discovery.Walk(cfg.Discovery.LogDir, cfg.Discovery.IncludeGlobs, cfg.Discovery.ExcludeGlobs, time.Now())
	if err != nil {
		return nil, err
	}
	if date == "" || all {
		return files, nil
	}
	// Walk always reports LogFile.DatePartition in canonical YYYY-MM-DD
	// form regardless of which directory-naming convention the tree
	// actually uses, so --date must be normalized to the same form
	// before filtering, whether the operator passed YYYYMMDD (the form
	// documented in the CLI table) or YYYY-MM-DD.
	dashed, _, ok := normalizeDate(date)
	if !ok {
		dashed = date
	}
	filtered := files[:0]
	for _, f := range files {
		if f.DatePartition == dashed {
			filtered = append(filtered, f)
		}
	}
	return filtered, nil
}

// normalizeDate parses raw as either YYYY-MM-DD or YYYYMMDD and returns
// both canonical forms; ok is false when raw matches neither.
func normalizeDate(raw string) (dashed, compact string, ok bool) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.Format("2006-01-02"), t.Format("20060102"), true
	}
	if t, err := time.Parse("20060102", raw); err == nil {
		return t.Format("2006-01-02"), t.Format("20060102"), true
	}
	return "", "", false
}

// resolveDateScope turns --date into the path-prefix scope adminops
// needs for --status/--reset-failed. FileState.Path carries whatever
// literal directory name Walk found on disk (dashed or compact), so this
// checks both canonical forms against the actual log tree and scopes to
// whichever one exists, defaulting to the dashed form if neither does.
func resolveDateScope(cfg *config.Config, date string) string {
	if date == "" {
		return ""
	}
	dashed, compact, ok := normalizeDate(date)
	if !ok {
		return filepath.Join(cfg.Discovery.LogDir, date)
	}
	if info, err := os.Stat(filepath.Join(cfg.Discovery.LogDir, dashed)); err == nil && info.IsDir() {
		return filepath.Join(cfg.Discovery.LogDir, dashed)
	}
	if info, err := os.Stat(filepath.Join(cfg.Discovery.LogDir, compact)); err == nil && info.IsDir() {
		return filepath.Join(cfg.Discovery.LogDir, compact)
	}
	return filepath.Join(cfg.Discovery.LogDir, dashed)
}

func runStatus(ctx context.Context, store statestore.Store, date string) {
	res, err := adminops.Status(ctx, store, date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status error: %v\n", err)
		os.Exit(3)
	}
	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}

func runResetFailed(ctx context.Context, store statestore.Store, date string, logger *zap.Logger) {
	n, err := adminops.ResetFailed(ctx, store, date)
	if err != nil {
		logger.Error("reset-failed error", obs.Err(err))
		os.Exit(3)
	}
	fmt.Printf("reset %d failed file(s) to pending\n", n)
}
