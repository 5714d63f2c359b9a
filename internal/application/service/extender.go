package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aiplusall/researchbench/internal/common"
	"github.com/aiplusall/researchbench/internal/config"
	"github.com/aiplusall/researchbench/internal/logger"
	"github.com/aiplusall/researchbench/internal/tracing"
	"github.com/aiplusall/researchbench/internal/types"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

// extenderCore is the shared machinery of the series and parallel
// extenders: search for background, generate a question answered by the
// keyword, then pass every gate. The two extenders differ only in tree
// structure, which the orchestrator owns.
type extenderCore struct {
	completion  interfaces.CompletionClient
	search      interfaces.WebSearchService
	minimizer   interfaces.KeywordMinimizer
	correlation interfaces.CorrelationGuard
	circular    interfaces.CircularGuard
	cfg         config.TreeConfig
	maxSnips    int
	method      types.GenerationMethod
	step        types.StepName
}

// SeriesExtenderService grows the tree in depth: one child whose answer
// is the extended keyword.
type SeriesExtenderService struct {
	extenderCore
}

// ParallelExtenderService grows the tree in breadth: one independent
// child per essential keyword of the parent.
type ParallelExtenderService struct {
	extenderCore
}

func newCore(cfg *config.Config, completion interfaces.CompletionClient, search interfaces.WebSearchService,
	minimizer interfaces.KeywordMinimizer, correlation interfaces.CorrelationGuard, circular interfaces.CircularGuard,
	method types.GenerationMethod, step types.StepName,
) extenderCore {
	return extenderCore{
		completion:  completion,
		search:      search,
		minimizer:   minimizer,
		correlation: correlation,
		circular:    circular,
		cfg:         cfg.Tree,
		maxSnips:    cfg.WebSearch.MaxSnippets,
		method:      method,
		step:        step,
	}
}

// NewSeriesExtender creates the depth extender.
func NewSeriesExtender(cfg *config.Config, completion interfaces.CompletionClient, search interfaces.WebSearchService,
	minimizer interfaces.KeywordMinimizer, correlation interfaces.CorrelationGuard, circular interfaces.CircularGuard,
) *SeriesExtenderService {
	return &SeriesExtenderService{newCore(cfg, completion, search, minimizer, correlation, circular,
		types.GenerationSeries, types.StepSeriesExtend)}
}

// NewParallelExtender creates the breadth extender.
func NewParallelExtender(cfg *config.Config, completion interfaces.CompletionClient, search interfaces.WebSearchService,
	minimizer interfaces.KeywordMinimizer, correlation interfaces.CorrelationGuard, circular interfaces.CircularGuard,
) *ParallelExtenderService {
	return &ParallelExtenderService{newCore(cfg, completion, search, minimizer, correlation, circular,
		types.GenerationParallel, types.StepParallelExtend)}
}

// Extend attempts one child query for the requested keyword, regenerating
// with stricter instructions up to the configured attempt cap. A final
// rejection is returned as an Outcome; errors are fatal for the tree.
func (c *extenderCore) Extend(ctx context.Context, req *interfaces.ExtendRequest) (types.Outcome, error) {
	ctx, span := tracing.ContextWithSpan(ctx, "Extender.Extend")
	defer span.End()
	span.SetAttributes(
		attribute.String("method", string(c.method)),
		attribute.String("keyword", req.Keyword.Text),
	)

	snippets, searchErr := c.search.Search(ctx, req.Keyword.Text, c.maxSnips)
	CounterFromContext(ctx).AddSearch(len(snippets))
	if searchErr != nil {
		logger.Warnf(ctx, "extension search unavailable for %q, continuing without snippets: %v", req.Keyword.Text, searchErr)
	}

	attempts := c.cfg.MaxRegenerateAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastOutcome types.Outcome
	for attempt := 0; attempt < attempts; attempt++ {
		outcome, err := c.extendOnce(ctx, req, snippets, attempt)
		if err != nil {
			return types.Outcome{}, err
		}
		if outcome.Accepted() {
			return outcome, nil
		}
		lastOutcome = outcome
		logger.Infof(ctx, "%s extension of %q attempt %d/%d rejected: %s (%s)",
			c.method, req.Keyword.Text, attempt+1, attempts, outcome.Reason, outcome.Detail)
	}
	return lastOutcome, nil
}

// extendOnce runs one generate → gate → minimize → gate pass and records
// its trajectory entry.
func (c *extenderCore) extendOnce(ctx context.Context, req *interfaces.ExtendRequest, snippets []*types.SearchSnippet, attempt int) (types.Outcome, error) {
	started := time.Now()
	counter := CounterFromContext(ctx)
	callsBefore := counter.CompletionCalls()
	parent := req.Parent.Query
	layer := parent.Layer + 1

	entry := types.TrajectoryEntry{
		Step:             c.step,
		Layer:            layer,
		ParentQuestion:   parent.Text,
		ParentAnswer:     parent.Answer,
		ParentKeywords:   parent.EssentialKeywordTexts(),
		CurrentAnswer:    req.Keyword.Text,
		GenerationMethod: c.method,
	}
	finish := func(outcome types.Outcome, validation []types.GateResult, scores []types.KeywordScore, question string) types.Outcome {
		entry.CurrentQuestion = question
		entry.Validation = validation
		entry.KeywordNecessity = scores
		entry.Reject = outcome.Reason
		if !outcome.Accepted() {
			entry.Error = outcome.Detail
		}
		entry.APICallCount = counter.CompletionCalls() - callsBefore
		entry.ElapsedMS = time.Since(started).Milliseconds()
		req.Recorder.Record(entry)
		return outcome
	}

	result, err := c.completion.Complete(ctx, &types.CompletionRequest{
		System: SystemObjective(),
		User:   BuildExtendGeneratePrompt(req.Keyword.Text, parent.Text, snippets, attempt),
	})
	if err != nil {
		if errors.Is(err, types.ErrEmptyCompletion) {
			return finish(types.Rejected(types.RejectEmptyCompletion, "completion produced no text"), nil, nil, ""), nil
		}
		return types.Outcome{}, fmt.Errorf("generate extension (prompt %s): %w", PromptExtendGenerate, err)
	}

	questionText := common.CleanQuestion(result.Text)
	if !strings.HasSuffix(questionText, "?") {
		questionText += "?"
	}
	if common.ContainsToken(questionText, req.Keyword.Text) {
		return finish(types.Rejected(types.RejectAnswerNotUnique,
			"generated question contains its own answer %q", req.Keyword.Text), nil, nil, questionText), nil
	}

	candidate := &types.Query{
		ID:               uuid.New().String(),
		Text:             questionText,
		Answer:           req.Keyword.Text,
		Layer:            layer,
		GenerationMethod: c.method,
		Confidence:       req.Keyword.Uniqueness,
	}
	// pre-minimization superset: gates see every candidate keyword
	for _, k := range extractCandidateKeywords(questionText) {
		k.Essential = true
		candidate.Keywords = append(candidate.Keywords, k)
	}

	ancestors := make([]*types.Query, 0, 3)
	for _, node := range append([]*types.TreeNode{req.Parent}, req.Parent.Ancestors()...) {
		ancestors = append(ancestors, node.Query)
	}

	validation, err := c.correlation.Check(ctx, candidate, ancestors, req.Keyword.Text, req.RootShortAnswer)
	if err != nil {
		return types.Outcome{}, err
	}
	if failed, bad := types.FirstFailed(validation); bad {
		reason := types.RejectCorrelationTooHigh
		switch failed.Gate {
		case types.GateDirectMention, types.GateObviousImplication, types.GateClueDensity, types.GateShortPath:
			reason = types.RejectExposesRootAnswer
		}
		return finish(types.Rejected(reason, "%s: %s", failed.Gate, failed.Detail), validation, nil, questionText), nil
	}

	essential, scores, err := c.minimizer.Minimize(ctx, questionText, req.Keyword.Text, candidate.Keywords)
	if err != nil {
		if err == types.ErrRootNotMinimal {
			return finish(types.Rejected(types.RejectRootNotMinimal,
				"minimized keyword set too small"), validation, scores, questionText), nil
		}
		return types.Outcome{}, err
	}
	candidate.Keywords = essential
	candidate.Complexity = float64(len(essential))

	cycles, err := c.circular.CheckCandidate(ctx, candidate, req.Parent)
	if err != nil {
		return types.Outcome{}, err
	}
	validation = append(validation, cycles...)
	if failed, bad := types.FirstFailed(cycles); bad {
		return finish(types.Rejected(types.RejectCycleDetected, "%s: %s", failed.Gate, failed.Detail),
			validation, scores, questionText), nil
	}

	return finish(types.OK(candidate), validation, scores, questionText), nil
}
