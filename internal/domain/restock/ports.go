package restock

import (
	"context"
	"time"

	"vendstock/internal/core/id"
	"vendstock/internal/domain/layout"
)

// Journal records committed visits. It runs inside the transaction that saves the machine.
type Journal interface {
	RecordVisit(ctx context.Context, v *Visit) error
}

// Observer is notified of session events (metrics).
type Observer interface {
	SessionOpened()
	InstructionResolved(kind Kind)
	CommitRefused(remaining int)
	CommitFailed()
	VisitCommitted(d time.Duration)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) SessionOpened()               {}
func (NopObserver) InstructionResolved(Kind)     {}
func (NopObserver) CommitRefused(int)            {}
func (NopObserver) CommitFailed()                {}
func (NopObserver) VisitCommitted(time.Duration) {}

// VisitStep is a journaled instruction.
type VisitStep struct {
	Handle      Handle `json:"handle"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
	Mandatory   bool   `json:"mandatory"`
}

// Visit is the journal entry of one committed restocking visit.
type Visit struct {
	Number      string         `json:"number"`
	MachineID   id.ID          `json:"machineId"`
	SessionID   id.ID          `json:"sessionId"`
	Location    string         `json:"location"`
	Operator    string         `json:"operator,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	CommittedAt time.Time      `json:"committedAt"`
	Resolved    []VisitStep    `json:"resolved"`
	Skipped     []VisitStep    `json:"skipped,omitempty"`
	Capped      []CappedCell   `json:"capped,omitempty"`
	Live        *layout.Layout `json:"live"`
}

func visitSteps(steps []Step) []VisitStep {
	out := make([]VisitStep, 0, len(steps))
	for _, s := range steps {
		out = append(out, VisitStep{
			Handle:      s.Handle,
			Kind:        s.Instruction.Kind(),
			Description: s.Instruction.Description(),
			Mandatory:   s.Instruction.Mandatory(),
		})
	}
	return out
}
