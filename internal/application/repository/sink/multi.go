package sink

import (
	"context"
	"errors"

	"github.com/aiplusall/researchbench/internal/config"
	"github.com/aiplusall/researchbench/internal/types"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

// MultiSink fans each tree out to every configured sink. It is the only
// mutable resource workers share; the underlying sinks serialize their
// own writes.
type MultiSink struct {
	sinks []interfaces.ResultSink
}

// NewMultiSink builds the default JSON + workbook sink pair.
func NewMultiSink(cfg *config.Config) (interfaces.ResultSink, error) {
	jsonSink, err := NewJSONSink(cfg.Sink.OutputDir)
	if err != nil {
		return nil, err
	}
	return &MultiSink{sinks: []interfaces.ResultSink{
		jsonSink,
		NewWorkbookSink(cfg.Sink.OutputDir, cfg.Sink.Workbook),
	}}, nil
}

// NewMultiSinkWith wires explicit sinks; used by tests.
func NewMultiSinkWith(sinks ...interfaces.ResultSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// WriteTree writes the tree to every sink.
func (s *MultiSink) WriteTree(ctx context.Context, tree *types.AgentTree) error {
	for _, sink := range s.sinks {
		if err := sink.WriteTree(ctx, tree); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink, returning the first error after attempting
// all of them.
func (s *MultiSink) Close(ctx context.Context) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
