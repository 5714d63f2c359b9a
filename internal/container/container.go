// Package container implements dependency injection container setup.
// Provides centralized wiring for services, repositories and sinks, and
// ensures proper lifecycle management of shared resources.
package container

import (
	"context"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/dig"

	"github.com/aiplusall/researchbench/internal/application/repository"
	"github.com/aiplusall/researchbench/internal/application/repository/sink"
	"github.com/aiplusall/researchbench/internal/application/service"
	"github.com/aiplusall/researchbench/internal/application/service/web_search"
	"github.com/aiplusall/researchbench/internal/config"
	"github.com/aiplusall/researchbench/internal/logger"
	"github.com/aiplusall/researchbench/internal/tracing"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

// BuildContainer constructs the dependency injection container with every
// component the pipeline needs.
func BuildContainer(container *dig.Container) *dig.Container {
	// Resource cleaner for proper release of shared resources
	must(container.Provide(NewResourceCleaner, dig.As(new(interfaces.ResourceCleaner))))

	// Core infrastructure
	must(container.Provide(config.LoadConfig))
	must(container.Invoke(setupLogging))
	must(container.Invoke(initTracing))
	must(container.Provide(initAntsPool))
	must(container.Invoke(registerPoolCleanup))

	// External service clients
	must(container.Provide(service.NewCompletionService))
	must(container.Provide(web_search.NewService, dig.As(new(interfaces.WebSearchService))))

	// Input and output adapters
	must(container.Provide(repository.NewJSONLDocumentProvider))
	must(container.Provide(sink.NewMultiSink))
	must(container.Invoke(registerSinkCleanup))

	// Pipeline services
	must(container.Provide(service.NewShortAnswerExtractor))
	must(container.Provide(service.NewKeywordMinimizer))
	must(container.Provide(service.NewRootQueryBuilder))
	must(container.Provide(service.NewCorrelationGuard))
	must(container.Provide(service.NewCircularGuard))
	must(container.Provide(service.NewSeriesExtender))
	must(container.Provide(service.NewParallelExtender))
	must(container.Provide(service.NewCompositeSynthesizer))
	must(container.Provide(service.NewTreeOrchestrator))

	return container
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func setupLogging(cfg *config.Config) {
	logger.Setup(cfg.Logging)
}

// initTracing installs span export and registers its flush on shutdown.
func initTracing(cfg *config.Config, cleaner interfaces.ResourceCleaner) error {
	shutdown, err := tracing.InitTracer(cfg.Tracing.Enabled)
	if err != nil {
		return err
	}
	cleaner.RegisterWithName("Tracer", func() error {
		return shutdown(context.Background())
	})
	return nil
}

// initAntsPool creates the shared goroutine pool the orchestrator runs
// tree workers on.
func initAntsPool(cfg *config.Config) (*ants.Pool, error) {
	size := cfg.Tree.WorkerCount
	if size < 1 {
		size = 1
	}
	return ants.NewPool(size, ants.WithPreAlloc(true))
}

// registerPoolCleanup ensures the goroutine pool releases on shutdown.
func registerPoolCleanup(pool *ants.Pool, cleaner interfaces.ResourceCleaner) {
	cleaner.RegisterWithName("AntsPool", func() error {
		pool.Release()
		return nil
	})
}

// registerSinkCleanup flushes the sinks (the workbook is written here).
func registerSinkCleanup(resultSink interfaces.ResultSink, cleaner interfaces.ResourceCleaner) {
	cleaner.RegisterWithName("ResultSink", func() error {
		return resultSink.Close(context.Background())
	})
}
