// Package main is the entry point for the vendstock background worker:
// it relays the outbox to NATS and announces machines that are due for a visit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"vendstock/internal/bootstrap"
	"vendstock/internal/config"
	"vendstock/internal/core/clock"
	"vendstock/internal/core/types"
	"vendstock/internal/domain/machine"
	natsclient "vendstock/internal/infrastructure/messaging/nats"
	"vendstock/internal/infrastructure/storage/postgres"
	"vendstock/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	if cfg.StorageDriver != config.DriverPostgres {
		log.Fatalw("the worker relays the postgres outbox; set STORAGE_DRIVER=postgres", "storage", cfg.StorageDriver)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting vendstock worker")

	clk := clock.System()
	st, err := bootstrap.OpenStorage(ctx, cfg, clk)
	if err != nil {
		log.Fatalw("failed to open storage", "error", err)
	}
	defer st.Close()

	publisher, err := natsclient.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix)
	if err != nil {
		log.Fatalw("failed to connect to nats", "url", cfg.NATSURL, "error", err)
	}
	defer publisher.Close()

	worker := &Worker{
		log:      log.WithComponent("worker"),
		cfg:      cfg,
		clock:    clk,
		txm:      st.TxManager,
		outbox:   st.Outbox,
		relay:    postgres.NewOutboxRelay(st.TxManager, cfg.OutboxBatch, publisher),
		machines: machine.NewService(st.Machines, st.Tx, clk),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Worker runs the relay and the due-visit scan on their own tickers.
type Worker struct {
	log      *logger.Logger
	cfg      config.Config
	clock    clock.Clock
	txm      *postgres.TxManager
	outbox   *postgres.OutboxPublisher
	relay    *postgres.OutboxRelay
	machines *machine.Service
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	pollTicker := time.NewTicker(w.cfg.OutboxPoll)
	defer pollTicker.Stop()

	dueTicker := time.NewTicker(w.cfg.DueScanInterval)
	defer dueTicker.Stop()

	dlqTicker := time.NewTicker(10 * time.Minute)
	defer dlqTicker.Stop()

	w.scanDue(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			w.processOutbox(ctx)
		case <-dueTicker.C:
			w.scanDue(ctx)
		case <-dlqTicker.C:
			w.deadLetter(ctx)
		}
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	// Drain while full batches keep coming.
	for {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n > 0 {
			w.log.Debugw("processed outbox batch", "count", n)
		}
		if n < w.cfg.OutboxBatch || ctx.Err() != nil {
			return
		}
	}
}

func (w *Worker) scanDue(ctx context.Context) {
	due, err := w.machines.ListDue(ctx)
	if err != nil {
		w.log.Errorw("due visit scan failed", "error", err)
		return
	}
	events := dueEvents(due, clock.Today(w.clock))
	if len(events) == 0 {
		return
	}

	err = w.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return w.outbox.PublishBatch(ctx, events)
	})
	if err != nil {
		w.log.Errorw("failed to queue visit.due events", "error", err)
		return
	}
	w.log.Infow("queued visit.due events", "count", len(events))
}

func (w *Worker) deadLetter(ctx context.Context) {
	moved, err := w.relay.MoveToDLQ(ctx)
	if err != nil {
		w.log.Errorw("dead-letter sweep failed", "error", err)
		return
	}
	if moved > 0 {
		w.log.Warnw("moved outbox messages to DLQ", "count", moved)
	}
}

// dueEvents builds one visit.due event per machine.
func dueEvents(due []*machine.Machine, today types.Date) []postgres.DomainEvent {
	events := make([]postgres.DomainEvent, 0, len(due))
	for _, m := range due {
		next := m.NextVisit()
		events = append(events, postgres.DomainEvent{
			AggregateType: "machine",
			AggregateID:   m.ID,
			EventType:     postgres.EventVisitDue,
			Payload: postgres.VisitDueEvent{
				MachineID:   m.ID,
				Location:    m.Location(),
				NextVisit:   next.String(),
				DaysOverdue: next.DaysUntil(today),
			},
		})
	}
	return events
}
