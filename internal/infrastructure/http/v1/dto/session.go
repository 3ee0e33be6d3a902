package dto

import (
	"time"

	"vendstock/internal/domain/layout"
	"vendstock/internal/domain/restock"
)

// InstructionResponse is one worklist entry.
type InstructionResponse struct {
	Handle      restock.Handle `json:"handle"`
	Kind        restock.Kind   `json:"kind"`
	Description string         `json:"description"`
	Mandatory   bool           `json:"mandatory"`
	Row         int            `json:"row"`
	Col         int            `json:"col"`
	ProductID   string         `json:"productId,omitempty"`
	Quantity    int            `json:"quantity,omitempty"`
}

// FromSteps maps steps in their given order.
func FromSteps(steps []restock.Step) []InstructionResponse {
	out := make([]InstructionResponse, 0, len(steps))
	for _, st := range steps {
		row, col := st.Instruction.Cell()
		item := InstructionResponse{
			Handle:      st.Handle,
			Kind:        st.Instruction.Kind(),
			Description: st.Instruction.Description(),
			Mandatory:   st.Instruction.Mandatory(),
			Row:         row,
			Col:         col,
		}
		if add, ok := st.Instruction.(restock.Addition); ok {
			item.ProductID = add.Product.ID.String()
			item.Quantity = add.Quantity
		}
		out = append(out, item)
	}
	return out
}

// SessionResponse is the state of an open restocking session.
type SessionResponse struct {
	ID           string                `json:"id"`
	MachineID    string                `json:"machineId"`
	State        restock.State         `json:"state"`
	StartedAt    time.Time             `json:"startedAt"`
	Instructions []InstructionResponse `json:"instructions"`
	Mandatory    []string              `json:"mandatory"`
	Working      *layout.Layout        `json:"working"`
}

// FromSession creates SessionResponse from a session view.
func FromSession(v restock.SessionView) SessionResponse {
	mandatory := v.Mandatory
	if mandatory == nil {
		mandatory = []string{}
	}
	return SessionResponse{
		ID:           v.ID.String(),
		MachineID:    v.MachineID.String(),
		State:        v.State,
		StartedAt:    v.StartedAt,
		Instructions: FromSteps(v.Steps),
		Mandatory:    mandatory,
		Working:      v.Working,
	}
}

// CompleteResponse reports a successful commit.
type CompleteResponse struct {
	Committed bool                 `json:"committed"`
	Capped    []restock.CappedCell `json:"capped,omitempty"`
}

// FromResult creates CompleteResponse from a commit result.
func FromResult(r restock.Result) CompleteResponse {
	return CompleteResponse{Committed: r.Committed, Capped: r.Capped}
}
