package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vendstock/internal/core/apperror"
	appctx "vendstock/internal/core/context"
	"vendstock/internal/core/id"
	"vendstock/internal/domain/restock"
	"vendstock/internal/infrastructure/http/v1/dto"
)

const visitHelp = `commands:
  list        show outstanding instructions
  do <n>      mark instruction n done
  grid        show the working layout
  done        commit the visit
  quit        abandon the visit (live layout unchanged)`

// NewVisitCommand creates the interactive visit command.
func NewVisitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "visit <machine-id>",
		Short: "Run a restocking visit interactively",
		Long: `Opens a restocking session and reads commands from stdin.

` + visitHelp,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVisit(cmd, opts, args[0])
		},
	}
}

func runVisit(cmd *cobra.Command, opts *RootOptions, rawID string) error {
	machineID, err := parseMachineID(rawID)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if opts.Operator != "" {
		ctx = appctx.WithOperator(ctx, &appctx.Operator{Name: opts.Operator})
	}
	e, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	svc := e.services.Restock
	view, err := svc.Begin(ctx, machineID)
	if err != nil {
		return err
	}

	loop := &visitLoop{
		ctx:       ctx,
		svc:       svc,
		sessionID: view.ID,
		p:         &Printer{Format: opts.Format, Writer: cmd.OutOrStdout()},
	}
	loop.printState(view)
	return loop.run(cmd.InOrStdin())
}

type visitLoop struct {
	ctx       context.Context
	svc       *restock.Service
	sessionID id.ID
	p         *Printer
}

// run reads commands until the visit is committed or abandoned. End of input abandons.
func (l *visitLoop) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(l.p.Writer, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(l.p.Writer)
			return l.abandon()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "list", "ls":
			l.show()
		case "do":
			if len(fields) != 2 {
				fmt.Fprintln(l.p.Writer, "usage: do <n>")
				continue
			}
			l.resolve(fields[1])
		case "grid":
			if view, err := l.svc.Get(l.sessionID); err == nil {
				printGrid(l.p, view.Working)
			}
		case "done":
			if finished := l.complete(); finished {
				return nil
			}
		case "quit", "exit":
			return l.abandon()
		case "help", "?":
			fmt.Fprintln(l.p.Writer, visitHelp)
		default:
			fmt.Fprintf(l.p.Writer, "unknown command %q (try help)\n", fields[0])
		}
	}
}

func (l *visitLoop) show() {
	view, err := l.svc.Get(l.sessionID)
	if err != nil {
		l.p.Error(err)
		return
	}
	l.printState(view)
}

func (l *visitLoop) printState(view restock.SessionView) {
	if l.p.Format == "json" {
		_ = l.p.JSON(dto.FromSession(view))
		return
	}
	printSteps(l.p, view.Steps)
	fmt.Fprintf(l.p.Writer, "%d mandatory left, state %s\n", len(view.Mandatory), view.State)
}

func (l *visitLoop) resolve(raw string) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(l.p.Writer, "not an instruction number: %s\n", raw)
		return
	}
	view, err := l.svc.Resolve(l.ctx, l.sessionID, restock.Handle(n))
	if err != nil {
		l.p.Error(err)
		return
	}
	l.printState(view)
}

// complete attempts the commit and reports whether the visit is over.
func (l *visitLoop) complete() bool {
	res, err := l.svc.Complete(l.ctx, l.sessionID)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeMandatoryRemaining) {
			fmt.Fprintln(l.p.Writer, "cannot finish, still to do:")
			for _, d := range res.Remaining {
				fmt.Fprintf(l.p.Writer, "  %s\n", d)
			}
			return false
		}
		l.p.Error(err)
		return false
	}

	if l.p.Format == "json" {
		_ = l.p.JSON(dto.FromResult(res))
		return true
	}
	fmt.Fprintln(l.p.Writer, "visit committed")
	for _, c := range res.Capped {
		fmt.Fprintf(l.p.Writer, "  pending (%d,%d) capped %d -> %d\n", c.Row, c.Col, c.From, c.To)
	}
	return true
}

func (l *visitLoop) abandon() error {
	if err := l.svc.Abandon(l.ctx, l.sessionID); err != nil {
		return err
	}
	fmt.Fprintln(l.p.Writer, "visit abandoned, live layout unchanged")
	return nil
}
