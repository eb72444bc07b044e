// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/jllopis/rolecast/pkg/bandit"
	"github.com/jllopis/rolecast/pkg/config"
	"github.com/jllopis/rolecast/pkg/decisionlog"
	"github.com/jllopis/rolecast/pkg/role"
	"github.com/jllopis/rolecast/pkg/telemetry"
)

const serviceName = "rolecast"

// app holds the components one command invocation works with.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *telemetry.DecisionMetrics
	decLog   decisionlog.Store
	engine   *bandit.Engine
	inferrer *role.Inferrer

	dbs      map[string]*sql.DB
	shutdown telemetry.ShutdownFunc
}

func newApp(cfg *config.Config, stderr io.Writer) (*app, error) {
	a := &app{cfg: cfg, dbs: make(map[string]*sql.DB)}
	a.logger = telemetry.NewLogger(stderr, cfg.Log.Level, cfg.Log.Format)

	shutdown, err := telemetry.InitWithConfig(serviceName, version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		Writer:       stderr,
	})
	if err != nil {
		return nil, err
	}
	a.shutdown = shutdown

	if a.metrics, err = telemetry.NewDecisionMetrics(context.Background()); err != nil {
		a.close()
		return nil, err
	}

	if cfg.DecisionLog.Enabled {
		db, err := a.openDB(cfg.DecisionLog.SQLitePath)
		if err != nil {
			a.close()
			return nil, err
		}
		if a.decLog, err = decisionlog.NewSQLiteStore(db); err != nil {
			a.close()
			return nil, fmt.Errorf("decision log: %w", err)
		}
	}

	a.inferrer = role.NewInferrer(
		role.WithThresholds(thresholds(cfg.Role)),
		role.WithLogger(a.logger),
		role.WithMetrics(a.metrics),
		role.WithDecisionLog(a.decLog),
	)
	return a, nil
}

// banditEngine builds the engine lazily so role commands never touch the
// bandit store.
func (a *app) banditEngine() (*bandit.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	store, err := a.banditStore()
	if err != nil {
		return nil, err
	}
	opts := []bandit.Option{
		bandit.WithEpsilon(a.cfg.Bandit.Epsilon),
		bandit.WithLogger(a.logger),
		bandit.WithMetrics(a.metrics),
		bandit.WithDecisionLog(a.decLog),
	}
	if a.cfg.Bandit.Seed != 0 {
		opts = append(opts, bandit.WithSeed(a.cfg.Bandit.Seed))
	}
	if a.engine, err = bandit.NewEngine(store, opts...); err != nil {
		return nil, err
	}
	return a.engine, nil
}

func (a *app) banditStore() (bandit.Store, error) {
	switch a.cfg.Bandit.Store {
	case "memory":
		return bandit.NewMemoryStore(), nil
	case "sqlite":
		db, err := a.openDB(a.cfg.Bandit.SQLitePath)
		if err != nil {
			return nil, err
		}
		return bandit.NewSQLiteStore(db, a.cfg.Bandit.StateKey)
	default:
		codec, err := bandit.ParseCodec(a.cfg.Bandit.Codec)
		if err != nil {
			return nil, err
		}
		return bandit.NewFileStore(a.cfg.Bandit.StatePath, codec), nil
	}
}

// openDB shares one handle per path between the bandit store and the
// decision log.
func (a *app) openDB(path string) (*sql.DB, error) {
	if db, ok := a.dbs[path]; ok {
		return db, nil
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	a.dbs[path] = db
	return db, nil
}

func (a *app) close() error {
	var errs []error
	for _, db := range a.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func thresholds(c config.RoleConfig) role.Thresholds {
	return role.Thresholds{
		CognitiveLoad:   c.CognitiveLoadThreshold,
		TeamPerformance: c.TeamPerformanceThreshold,
		Reliance:        c.RelianceThreshold,
	}
}
