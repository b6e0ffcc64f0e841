package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"netconform/internal/adapter"
	"netconform/internal/codec"
	"netconform/internal/config"
	"netconform/internal/domain"
	"netconform/internal/evidence"
	"netconform/internal/loader"
	"netconform/internal/repository"
	"netconform/internal/repository/memory"
	"netconform/internal/repository/sqldb"
	"netconform/internal/service"
)

// app is the state shared by every command
type app struct {
	cfg *config.Config
	db  repository.EntityDatabase
	rec *service.Reconciler
}

// loadConfig reads the config file and applies environment and flag
// overrides. It also installs the default logger.
func loadConfig() (*config.Config, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if configPath != "" {
		cfg, path, err = config.LoadFromPath(configPath)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	if database != "" {
		applyDatabaseFlag(cfg, database)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.SetDefault(setupLogger(cfg.Log.Level, cfg.Log.File))
	if path != "" {
		slog.Debug("Loaded config", "path", path)
	}
	return cfg, nil
}

func applyDatabaseFlag(cfg *config.Config, v string) {
	driver, target, _ := strings.Cut(v, ":")
	cfg.Database.Driver = driver
	if driver == config.DriverMySQL {
		cfg.Database.DSN = target
	} else {
		cfg.Database.Path = target
	}
}

// openDatabase opens the configured entity database
func openDatabase(cfg *config.Config) (repository.EntityDatabase, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite, config.DriverMySQL:
		return sqldb.New(cfg.Database.Driver, cfg.DataSource())
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

// newApp loads config and model, opens the database and starts the
// reconciler
func newApp(ctx context.Context, opts ...service.Option) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Model.Path == "" {
		return nil, fmt.Errorf("no model: set model.path in the config or pass --model")
	}

	model, err := loader.LoadYAML(cfg.Model.Path)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", cfg.Model.Path, err)
	}
	nets, err := cfg.IPNetworks()
	if err != nil {
		return nil, err
	}
	applyNetworks(model.System, nets)

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	rec := service.NewReconciler(model, db, opts...)
	if err := rec.Start(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("start reconciler: %w", err)
	}
	slog.Info("Model loaded", "system", model.System.Name, "path", cfg.Model.Path,
		"database", cfg.Database.Driver)

	return &app{cfg: cfg, db: db, rec: rec}, nil
}

// applyNetworks uses the configured networks unless the model declares its own
func applyNetworks(s *domain.System, nets []netip.Prefix) {
	if len(nets) == 0 {
		return
	}
	if len(s.IPNetworks) == 1 && s.IPNetworks[0] == domain.DefaultIPNetwork {
		s.IPNetworks = nets
	}
}

func (a *app) Close() {
	a.rec.Stop()
	if err := a.db.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

// importFiles submits every evidence file. Files ending in .yaml or .yml
// hold a YAML list of events, anything else is JSON Lines.
func (a *app) importFiles(ctx context.Context, paths []string, label string) (int, error) {
	total := 0
	for _, path := range paths {
		n, err := a.importFile(ctx, path, label)
		total += n
		if err != nil {
			return total, fmt.Errorf("import %s: %w", path, err)
		}
		slog.Info("Imported evidence", "path", path, "events", n)
	}
	return total, nil
}

func (a *app) importFile(ctx context.Context, path, label string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open evidence: %w", err)
	}
	defer f.Close()

	source := evidence.NewSource(path, label)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		events, err := a.rec.ParseYAML(ctx, f, source)
		if err != nil {
			return 0, err
		}
		return a.rec.SubmitAll(ctx, events)
	}
	return a.rec.Import(ctx, a.rec.NewLinesReader(f, source))
}

// collectOptions selects the collectors of one run
type collectOptions struct {
	reports  []string
	scan     config.ScanConfig
	sshProbe bool
	record   string
}

// nmapOptions builds the nmap adapter options of a run
func nmapOptions(opts collectOptions) ([]adapter.NmapOption, error) {
	nopts := []adapter.NmapOption{adapter.WithReports(opts.reports...)}
	scan := opts.scan
	if len(scan.Targets) == 0 {
		return nopts, nil
	}
	if scan.Ports != "" {
		if err := adapter.ValidatePorts(scan.Ports); err != nil {
			return nil, fmt.Errorf("scan ports: %w", err)
		}
		nopts = append(nopts, adapter.WithPortRange(scan.Ports))
	}
	return append(nopts,
		adapter.WithTargets(scan.Targets...),
		adapter.WithUDP(scan.UDP),
		adapter.WithServiceDetection(scan.ServiceDetection),
		adapter.WithSkipHostDiscovery(scan.SkipHostDiscovery),
		adapter.WithTimeout(scan.Timeout.Or(10*time.Minute)),
		adapter.WithLabel(scan.Label),
	), nil
}

// collect reads the nmap reports, runs the live scan and the optional SSH
// probe. With a record path the collected events are also written there as
// JSON Lines.
func (a *app) collect(ctx context.Context, opts collectOptions) (int, error) {
	if len(opts.reports) == 0 && len(opts.scan.Targets) == 0 {
		return 0, nil
	}
	nopts, err := nmapOptions(opts)
	if err != nil {
		return 0, err
	}

	submit := adapter.SubmitFunc(a.rec.SubmitAll)
	if opts.record != "" {
		f, err := os.OpenFile(opts.record, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return 0, fmt.Errorf("open record file: %w", err)
		}
		defer f.Close()
		submit = recording(a.rec.NewLinesWriter(f), submit)
	}

	reg := adapter.NewRegistry(submit)
	if err := reg.Register(adapter.NewNmapAdapter(nopts...)); err != nil {
		return 0, err
	}
	if opts.sshProbe {
		if err := reg.Register(adapter.NewSSHProbeAdapter(adapter.DefaultSSHProbeConfig())); err != nil {
			return 0, err
		}
	}
	return reg.Run(ctx)
}

// recording writes every batch before passing it on
func recording(w *codec.LinesWriter, next adapter.SubmitFunc) adapter.SubmitFunc {
	return func(ctx context.Context, events []evidence.Event) (int, error) {
		for _, ev := range events {
			if err := w.Write(ctx, ev); err != nil {
				return 0, fmt.Errorf("record evidence: %w", err)
			}
		}
		return next(ctx, events)
	}
}
