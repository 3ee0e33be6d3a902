package bootstrap

import (
	"time"

	"vendstock/internal/core/clock"
	"vendstock/internal/domain/machine"
	"vendstock/internal/domain/product"
	"vendstock/internal/domain/restock"
)

// Services are the domain services over one Storage.
type Services struct {
	Products *product.Service
	Machines *machine.Service
	Restock  *restock.Service
}

// NewServices builds the domain services. A nil observer records nothing.
func NewServices(st *Storage, clk clock.Clock, sessionTTL time.Duration, observer restock.Observer) Services {
	if observer == nil {
		observer = restock.NopObserver{}
	}
	visits := restock.NewService(st.Machines,
		restock.WithJournal(st.Journal),
		restock.WithObserver(observer),
		restock.WithClock(clk),
		restock.WithNumerator(st.Numbers),
		restock.WithSessionTTL(sessionTTL),
		restock.WithTransactions(st.CommitTx),
	)
	return Services{
		Products: product.NewService(st.Products, st.Tx),
		Machines: machine.NewService(st.Machines, st.Tx, clk, machine.WithVisitLock(visits)),
		Restock:  visits,
	}
}
