// Command researchbench generates deep-research evaluation benchmarks:
// trees of interlinked questions rooted at short factual answers, composed
// into multi-hop queries that cannot be answered in a single model call.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/dig"

	appcontainer "github.com/aiplusall/researchbench/internal/container"
	"github.com/aiplusall/researchbench/internal/logger"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "researchbench: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	container := appcontainer.BuildContainer(dig.New())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return container.Invoke(func(
		orchestrator interfaces.TreeOrchestrator,
		docs interfaces.DocumentProvider,
		cleaner interfaces.ResourceCleaner,
	) error {
		defer func() {
			if err := docs.Close(); err != nil {
				logger.Errorf(ctx, "close document provider: %v", err)
			}
			for _, err := range cleaner.Cleanup() {
				logger.Errorf(ctx, "shutdown: %v", err)
			}
		}()

		summary, err := orchestrator.Run(ctx, docs)
		if err != nil {
			return err
		}
		logger.Infof(ctx, "done: %d documents processed, %d trees emitted, %d candidates failed, %d tokens used",
			summary.DocumentsProcessed, summary.TreesEmitted, summary.CandidatesFailed, summary.Usage.TotalTokens)
		return nil
	})
}
