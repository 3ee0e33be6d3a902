// Package main seeds a store with demo products and a machine ready for its first visit.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"vendstock/internal/bootstrap"
	"vendstock/internal/config"
	"vendstock/internal/core/clock"
	"vendstock/internal/core/types"
	"vendstock/internal/domain/layout"
	"vendstock/internal/domain/machine"
	"vendstock/internal/domain/product"
	"vendstock/pkg/logger"
)

const (
	demoLocation = "Demo: ground floor lobby"
	demoDepth    = 12
	demoInterval = 7
)

type productSeed struct {
	name      string
	price     string
	shelfLife int
}

var demoProducts = []productSeed{
	{"Cola 0.5L", "1.80", 180},
	{"Still water 0.5L", "0.90", 365},
	{"Salted chips", "1.50", 120},
	{"Dark chocolate bar", "2.20", 240},
	{"Orange juice 0.33L", "2.10", 21},
}

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("invalid configuration", "error", err)
	}

	ctx := context.Background()
	clk := clock.System()

	st, err := bootstrap.OpenStorage(ctx, cfg, clk)
	if err != nil {
		log.Fatalw("failed to open storage", "driver", cfg.StorageDriver, "error", err)
	}
	defer st.Close()

	log.Infow("connected to storage", "driver", st.Driver)
	svc := bootstrap.NewServices(st, clk, cfg.SessionTTL, nil)

	products, err := seedProducts(ctx, svc.Products, log)
	if err != nil {
		log.Fatalw("failed to seed products", "error", err)
	}

	if err := seedMachine(ctx, svc.Machines, products, clock.Today(clk), log); err != nil {
		log.Fatalw("failed to seed machine", "error", err)
	}

	log.Info("seeding completed successfully")
}

// seedProducts creates missing demo products and returns all of them in seed order.
func seedProducts(ctx context.Context, svc *product.Service, log *logger.Logger) ([]*product.Product, error) {
	out := make([]*product.Product, 0, len(demoProducts))
	for _, s := range demoProducts {
		existing, err := svc.List(ctx, product.ListFilter{Search: s.name})
		if err != nil {
			return nil, fmt.Errorf("lookup %q: %w", s.name, err)
		}
		if p := byName(existing, s.name); p != nil {
			log.Infow("product already exists", "name", s.name, "id", p.ID)
			out = append(out, p)
			continue
		}

		p, err := product.NewProduct(s.name, types.MustMoney(s.price), s.shelfLife)
		if err != nil {
			return nil, err
		}
		if err := svc.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("create %q: %w", s.name, err)
		}
		log.Infow("product created", "name", s.name, "id", p.ID)
		out = append(out, p)
	}
	return out, nil
}

func byName(items []*product.Product, name string) *product.Product {
	for _, p := range items {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// seedMachine registers a 2x2 machine whose target swaps the two middle products,
// so the first visit needs two removals and two refills.
func seedMachine(ctx context.Context, svc *machine.Service, p []*product.Product, today types.Date, log *logger.Logger) error {
	machines, err := svc.List(ctx, machine.ListFilter{})
	if err != nil {
		return err
	}
	for _, m := range machines {
		if m.Location() == demoLocation {
			log.Infow("demo machine already exists", "id", m.ID)
			return nil
		}
	}

	a, b, c, d := p[0], p[1], p[2], p[3]
	slot := func(pr *product.Product, count int) layout.Cell {
		return layout.Occupied(layout.MustSlot(pr, count, pr.ExpirationFrom(today)))
	}

	live, err := layout.FromGrid([][]layout.Cell{
		{slot(a, 1), slot(b, 0)},
		{slot(c, 1), slot(d, 5)},
	}, demoDepth)
	if err != nil {
		return err
	}
	pending, err := layout.FromGrid([][]layout.Cell{
		{slot(a, demoDepth), slot(c, demoDepth)},
		{slot(b, demoDepth), slot(d, demoDepth)},
	}, demoDepth)
	if err != nil {
		return err
	}

	m, err := svc.Create(ctx, machine.CreateParams{
		Location:         demoLocation,
		StockingInterval: demoInterval,
		Live:             live,
		Pending:          pending,
	})
	if err != nil {
		return err
	}
	log.Infow("demo machine created", "id", m.ID, "next_visit", m.NextVisit())
	return nil
}
