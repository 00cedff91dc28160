package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/cmd/mcp"
	"github.com/chirino/ufdr-service/internal/cmd/migrate"
	"github.com/chirino/ufdr-service/internal/cmd/serve"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "ufdr-service",
		Usage: "Question answering over forensic UFDR evidence",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			mcp.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
