// Package app provides the docqa server application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/docqa/cmd/docqa/app/options"
	docqa "github.com/kart-io/docqa/internal/docqa"
	"github.com/kart-io/docqa/pkg/infra/app"
)

// commandDesc is the description of the command.
const commandDesc = `docqa - single document question answering

Upload one document, then ask questions answered only from its content.

This server provides:
  - PDF text extraction, chunking and embedding into a replaceable vector index
  - Similarity retrieval and grounded answer generation
  - Providers selected by strategy: local (ollama), cloud-a (gemini), cloud-b (openai-compatible)`

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(docqa.Name),
		app.WithShortDescription("Single document question answering service"),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := setupSignalContext()

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		return server.Run(ctx)
	}
}

// setupSignalContext returns a context that is cancelled on SIGINT or SIGTERM.
// A second signal exits immediately.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}
