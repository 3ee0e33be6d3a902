package cli

import (
	"github.com/spf13/cobra"

	"vendstock/internal/core/id"
	"vendstock/internal/domain/restock"
	"vendstock/internal/infrastructure/http/v1/dto"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "plan <machine-id>",
		Short:   "Show the worklist a visit would start with",
		Example: `  restock plan 0190a1b2-7c3d-7000-8000-00000000c0de --format json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, opts, args[0])
		},
	}
}

func runPlan(cmd *cobra.Command, opts *RootOptions, rawID string) error {
	machineID, err := parseMachineID(rawID)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	e, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	steps, err := e.services.Restock.Preview(ctx, machineID)
	if err != nil {
		return err
	}

	p := &Printer{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return p.JSON(dto.FromSteps(steps))
	}
	printSteps(p, steps)
	return nil
}

func parseMachineID(raw string) (id.ID, error) {
	machineID, err := id.Parse(raw)
	if err != nil {
		return id.Nil(), WrapExitError(ExitCommandError, "invalid machine id "+raw, err)
	}
	return machineID, nil
}

func printSteps(p *Printer, steps []restock.Step) {
	t := p.Table("#", "Instruction", "Mandatory")
	for _, st := range steps {
		t.AppendRow([]any{st.Handle, st.Instruction.Description(), yesNo(st.Instruction.Mandatory())})
	}
	if len(steps) == 0 {
		t.AppendRow([]any{"", "nothing to do", ""})
	}
	t.Render()
}
