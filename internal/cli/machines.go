package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vendstock/internal/core/clock"
	"vendstock/internal/domain/machine"
	"vendstock/internal/infrastructure/http/v1/dto"
)

// MachinesOptions holds flags for the machines command.
type MachinesOptions struct {
	*RootOptions
	DueOnly bool
}

// NewMachinesCommand creates the machines command.
func NewMachinesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MachinesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "machines",
		Short: "List machines and their next visit",
		Example: `  restock machines
  restock machines --due --store badger`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMachines(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.DueOnly, "due", false, "only active machines due today or earlier")
	return cmd
}

func runMachines(cmd *cobra.Command, opts *MachinesOptions) error {
	ctx := cmd.Context()
	e, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	var items []*machine.Machine
	if opts.DueOnly {
		items, err = e.services.Machines.ListDue(ctx)
	} else {
		items, err = e.services.Machines.List(ctx, machine.ListFilter{})
	}
	if err != nil {
		return err
	}

	p := &Printer{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		out := make([]dto.MachineResponse, len(items))
		for i, m := range items {
			out[i] = dto.FromMachine(m, false)
		}
		return p.JSON(out)
	}

	now := opts.clock.Now()
	t := p.Table("ID", "Location", "Interval", "Next visit", "Active", "Due")
	for _, m := range items {
		t.AppendRow([]any{
			m.ID, m.Location(), fmt.Sprintf("%dd", m.StockingInterval()),
			m.NextVisit(), yesNo(m.Active()), yesNo(m.IsDue(now)),
		})
	}
	t.AppendFooter([]any{"", "", "", "", "today", clock.Today(opts.clock)})
	t.Render()
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
