package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ledger/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// cobra reports the error on stderr
	err := cli.NewRootCommand(cli.ConfigOpener()).ExecuteContext(ctx)
	stop()
	os.Exit(cli.GetExitCode(err))
}
