// Package bootstrap wires the storage backend selected by configuration.
package bootstrap

import (
	"context"
	"fmt"

	"vendstock/internal/config"
	"vendstock/internal/core/clock"
	"vendstock/internal/core/numerator"
	"vendstock/internal/core/tx"
	"vendstock/internal/domain/machine"
	"vendstock/internal/domain/product"
	"vendstock/internal/domain/restock"
	"vendstock/internal/infrastructure/cache"
	"vendstock/internal/infrastructure/storage/badger"
	"vendstock/internal/infrastructure/storage/postgres"
	"vendstock/internal/infrastructure/storage/postgres/catalog_repo"
	"vendstock/internal/infrastructure/storage/postgres/machine_repo"
	"vendstock/pkg/logger"
	pgnumerator "vendstock/pkg/numerator"
)

// Pinger is a dependency checked by readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Storage bundles the repositories of one backend.
type Storage struct {
	Driver   string
	Products product.Repository
	Machines machine.Repository
	Journal  restock.Journal
	Numbers  numerator.Generator
	// Tx is the manager for ordinary writes; CommitTx is the one a visit commit runs in.
	Tx       tx.Manager
	CommitTx tx.Manager

	// Set only for the postgres driver.
	Pool      *postgres.Pool
	TxManager *postgres.TxManager
	Outbox    *postgres.OutboxPublisher

	pinger Pinger
	close  func()
}

// OpenStorage opens the backend named by cfg.StorageDriver. Postgres schemas are migrated on open.
func OpenStorage(ctx context.Context, cfg config.Config, clk clock.Clock) (*Storage, error) {
	switch cfg.StorageDriver {
	case config.DriverBadger:
		return openBadger(cfg)
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, clk)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func openBadger(cfg config.Config) (*Storage, error) {
	store, err := badger.Open(cfg.BadgerDir)
	if err != nil {
		return nil, err
	}
	logger.Info(context.Background(), "badger store opened", "dir", cfg.BadgerDir)
	return &Storage{
		Driver:   config.DriverBadger,
		Products: store.Products(),
		Machines: store.Machines(),
		Journal:  store.Journal(),
		Numbers:  numerator.NewMemory(),
		Tx:       tx.Passthrough{},
		CommitTx: tx.Passthrough{},
		pinger:   store,
		close:    func() { _ = store.Close() },
	}, nil
}

func openPostgres(ctx context.Context, cfg config.Config, clk clock.Clock) (*Storage, error) {
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	txm := postgres.NewTxManager(pool)
	outbox := postgres.NewOutboxPublisher(txm)
	journal, err := postgres.NewVisitJournal(txm, outbox)
	if err != nil {
		pool.Close()
		return nil, err
	}

	products := cache.NewProductCache(catalog_repo.NewProductRepo(txm), pool.Pool)
	products.Start(ctx)

	return &Storage{
		Driver:    config.DriverPostgres,
		Products:  products,
		Machines:  machine_repo.NewMachineRepo(txm, clk),
		Journal:   journal,
		Numbers:   pgnumerator.New(txm.ContextQuerier()),
		Tx:        txm,
		CommitTx:  txm.WithOptions(postgres.CommitTxOptions()),
		Pool:      pool,
		TxManager: txm,
		Outbox:    outbox,
		pinger:    pool,
		close: func() {
			products.Stop()
			pool.Close()
		},
	}, nil
}

// Pinger returns the readiness check of the backend, keyed by driver name.
func (s *Storage) Pinger() (string, Pinger) {
	return s.Driver, s.pinger
}

// Close releases the backend.
func (s *Storage) Close() {
	if s.close != nil {
		s.close()
	}
}
