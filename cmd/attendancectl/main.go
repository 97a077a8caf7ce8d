package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gymflow/gymflow-backend/internal/attendance/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(cli.OpenFromConfig).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
