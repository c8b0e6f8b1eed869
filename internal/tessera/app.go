package tessera

import (
	"context"
	"fmt"

	"github.com/tessera-ai/tessera/pkg/app"
)

const (
	appName        = "tessera-server"
	appDescription = `Tessera document Q&A service

Tessera ingests documents into named collections and answers questions
against them using hybrid retrieval (dense vectors plus BM25) and an LLM.

The server provides:
  - Collection and document management with background ingestion
  - Hybrid semantic search over document chunks
  - One-shot and streaming question answering with source citations`
)

// NewApp creates the tessera application.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithShortDescription("Document Q&A service with hybrid retrieval"),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}

// Run starts the service with the given options.
func Run(opts *Options) error {
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	server, err := NewServer(ctx, opts)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
