// Package restock implements the restocking reconciliation engine: it diffs a
// machine's live layout against its pending layout, lets a restocker resolve the
// resulting worklist against a private working snapshot, and commits the snapshot
// as the new live layout once every mandatory step is done.
package restock

import (
	"fmt"

	"vendstock/internal/domain/product"
)

// Handle identifies an instruction within one engine. Handles start at 1 and
// increase in row-major grid order.
type Handle int

// Kind discriminates instruction variants.
type Kind string

const (
	KindRemoval  Kind = "removal"
	KindAddition Kind = "addition"
)

// Instruction is one worklist step: either a Removal or an Addition.
type Instruction interface {
	Kind() Kind
	// Cell returns the grid coordinates the step applies to.
	Cell() (row, col int)
	Mandatory() bool
	Description() string

	sealed()
}

// Removal empties a cell. Removals are always mandatory.
type Removal struct {
	Row int
	Col int
}

func (Removal) Kind() Kind            { return KindRemoval }
func (r Removal) Cell() (int, int)    { return r.Row, r.Col }
func (Removal) Mandatory() bool       { return true }
func (r Removal) Description() string { return fmt.Sprintf("remove all from (%d,%d)", r.Row, r.Col) }
func (Removal) sealed()               {}

// Addition loads Quantity units of Product into an empty cell. Additions can be deferred.
type Addition struct {
	Row      int
	Col      int
	Product  *product.Product
	Quantity int
}

func (Addition) Kind() Kind         { return KindAddition }
func (a Addition) Cell() (int, int) { return a.Row, a.Col }
func (Addition) Mandatory() bool    { return false }
func (a Addition) Description() string {
	return fmt.Sprintf("add %d %s to (%d,%d)", a.Quantity, a.Product.Name, a.Row, a.Col)
}
func (Addition) sealed() {}

// Step pairs an instruction with its handle for ordered listings.
type Step struct {
	Handle      Handle
	Instruction Instruction
}
