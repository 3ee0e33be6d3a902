// Command restock is the operator CLI: list machines, preview worklists and run visits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"vendstock/internal/cli"
	"vendstock/internal/config"
	"vendstock/internal/core/clock"
	"vendstock/pkg/logger"
)

func main() {
	// Service logs would interleave with the interactive prompt.
	logger.SetDefault(logger.NewNop())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand(config.Read(), clock.System())
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
