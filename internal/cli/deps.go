package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lucasnoah/greenlight/internal/checks"
	"github.com/lucasnoah/greenlight/internal/ci"
	"github.com/lucasnoah/greenlight/internal/config"
	"github.com/lucasnoah/greenlight/internal/db"
	"github.com/lucasnoah/greenlight/internal/dispatch"
	"github.com/lucasnoah/greenlight/internal/ecosystem"
	"github.com/lucasnoah/greenlight/internal/gate"
	"github.com/lucasnoah/greenlight/internal/gitops"
	"github.com/lucasnoah/greenlight/internal/monitor"
	"github.com/lucasnoah/greenlight/internal/orchestrator"
	"github.com/lucasnoah/greenlight/internal/state"
	"github.com/spf13/cobra"
)

// openDB opens and migrates the DB, returning it with a cleanup func.
func openDB() (*db.DB, func(), error) {
	dbPath, err := db.DefaultDBPath()
	if err != nil {
		return nil, nil, err
	}
	d, err := db.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

// newController wires a Controller for the current working directory.
func newController() (*orchestrator.Controller, func(), error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}

	kind, err := ecosystem.Detect(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("detect ecosystem: %w", err)
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, nil, fmt.Errorf("invalid config: %s", errs[0].Error())
	}

	store, err := state.DefaultStore()
	if err != nil {
		return nil, nil, fmt.Errorf("open state store: %w", err)
	}

	d, cleanupDB, err := openDB()
	if err != nil {
		return nil, nil, err
	}

	gateRunner := gate.New(checks.NewRunner(&checks.ExecRunner{}))
	gateRunner.SetProgress(os.Stderr)

	registry := dispatch.NewRegistry()
	for name, command := range cfg.Greenlight.Specialists {
		registry.Register(name, dispatch.NewCommandSpecialist(name, command, dir))
	}
	dispatcher := dispatch.New(&checks.ExecRunner{}, registry, kind)
	dispatcher.SetProgress(os.Stderr)

	provider := ci.NewGHProvider(&ci.ExecRunner{})

	mon := monitor.New(provider)
	mon.FastInterval = cfg.Greenlight.Polling.FastIntervalDuration()
	mon.SlowInterval = cfg.Greenlight.Polling.SlowIntervalDuration()
	mon.AgeThreshold = cfg.Greenlight.Polling.AgeThresholdDuration()
	mon.Ceiling = cfg.Greenlight.Budgets.MonitorCeilingDuration()
	mon.SetProgress(os.Stderr)

	repo := gitops.NewRepo(&gitops.ExecRunner{}, dir)

	ctrl := orchestrator.NewController(store, d, gateRunner, dispatcher, repo, provider, mon, cfg, kind)
	ctrl.SetProgress(os.Stderr)

	return ctrl, cleanupDB, nil
}

// writeJSON prints v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
