package service

import (
	"context"
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

// RootQueryBuilderService builds the minimal-keyword root question whose
// unique answer is the extracted short answer.
type RootQueryBuilderService struct {
	completion interfaces.CompletionClient
	search     interfaces.WebSearchService
	minimizer  interfaces.KeywordMinimizer
	cfg        config.TreeConfig
	maxSnips   int
}

// NewRootQueryBuilder creates the root builder.
func NewRootQueryBuilder(
	cfg *config.Config,
	completion interfaces.CompletionClient,
	search interfaces.WebSearchService,
	minimizer interfaces.KeywordMinimizer,
) interfaces.RootQueryBuilder {
	return &RootQueryBuilderService{
		completion: completion,
		search:     search,
		minimizer:  minimizer,
		cfg:        cfg.Tree,
		maxSnips:   cfg.WebSearch.MaxSnippets,
	}
}

// BuildRoot runs the root construction protocol: search for background,
// generate, extract keywords, minimize, and verify the answer probe.
// Fails with types.ErrRootNotMinimal after exhausting regeneration
// attempts, or types.ErrAnswerNotUnique when the probe cannot re-derive
// the answer.
func (s *RootQueryBuilderService) BuildRoot(ctx context.Context, shortAnswer types.ShortAnswer, docContext string, rec interfaces.TrajectoryRecorder) (*types.Query, error) {
	ctx, span := tracing.ContextWithSpan(ctx, "RootQueryBuilder.BuildRoot")
	defer span.End()
	span.SetAttributes(attribute.String("short_answer", shortAnswer.Text))

	started := time.Now()
	counter := CounterFromContext(ctx)
	callsBefore := counter.CompletionCalls()

	searchQuery := shortAnswer.Text
	if window := strings.TrimSpace(shortAnswer.ContextWindow); window != "" {
		searchQuery = shortAnswer.Text + " " + common.TruncateRunes(window, 120)
	}
	snippets, searchErr := s.search.Search(ctx, searchQuery, s.maxSnips)
	counter.AddSearch(len(snippets))
	if searchErr != nil {
		// non-fatal: proceed with only the document context
		logger.Warnf(ctx, "root search unavailable, continuing without snippets: %v", searchErr)
	}

	attempts := s.cfg.MaxRegenerateAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		query, scores, err := s.buildOnce(ctx, shortAnswer, docContext, snippets, attempt)
		entry := types.TrajectoryEntry{
			Step:             types.StepRootBuild,
			Layer:            0,
			GenerationMethod: types.GenerationRoot,
			CurrentAnswer:    shortAnswer.Text,
			KeywordNecessity: scores,
			APICallCount:     counter.CompletionCalls() - callsBefore,
			ElapsedMS:        time.Since(started).Milliseconds(),
		}
		if err != nil {
			entry.Error = err.Error()
			switch {
			case err == types.ErrRootNotMinimal:
				entry.Reject = types.RejectRootNotMinimal
			case err == types.ErrAnswerNotUnique:
				entry.Reject = types.RejectAnswerNotUnique
			}
			rec.Record(entry)
			lastErr = err
			logger.Infof(ctx, "root attempt %d/%d failed: %v", attempt+1, attempts, err)
			continue
		}
		entry.CurrentQuestion = query.Text
		entry.Keywords = query.EssentialKeywordTexts()
		entry.Validation = []types.GateResult{{Gate: types.GateAnswerUnique, Passed: true}}
		rec.Record(entry)
		return query, nil
	}
	if lastErr == nil {
		lastErr = types.ErrRootNotMinimal
	}
	return nil, lastErr
}

// buildOnce performs one generate → minimize → verify pass.
func (s *RootQueryBuilderService) buildOnce(ctx context.Context, shortAnswer types.ShortAnswer, docContext string, snippets []*types.SearchSnippet, attempt int) (*types.Query, []types.KeywordScore, error) {
	result, err := s.completion.Complete(ctx, &types.CompletionRequest{
		System: SystemObjective(),
		User:   BuildRootGeneratePrompt(shortAnswer, common.TruncateRunes(docContext, 2000), snippets, attempt),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("generate root question (prompt %s): %w", PromptRootGenerate, err)
	}

	questionText := common.CleanQuestion(result.Text)
	if !strings.HasSuffix(questionText, "?") {
		questionText += "?"
	}
	if common.ContainsToken(questionText, shortAnswer.Text) {
		return nil, nil, types.ErrAnswerNotUnique
	}

	candidates := extractCandidateKeywords(questionText)
	essential, scores, err := s.minimizer.Minimize(ctx, questionText, shortAnswer.Text, candidates)
	if err != nil {
		return nil, scores, err
	}

	if err := s.verifyAnswer(ctx, questionText, shortAnswer.Text); err != nil {
		return nil, scores, err
	}

	return &types.Query{
		ID:               uuid.New().String(),
		Text:             questionText,
		Answer:           shortAnswer.Text,
		Keywords:         essential,
		Layer:            0,
		GenerationMethod: types.GenerationRoot,
		Confidence:       shortAnswer.Confidence,
		Complexity:       float64(len(essential)),
	}, scores, nil
}

// verifyAnswer runs the independent reference probe: the question must
// re-derive exactly the short answer.
func (s *RootQueryBuilderService) verifyAnswer(ctx context.Context, questionText, answer string) error {
	result, err := s.completion.Complete(ctx, &types.CompletionRequest{
		System:      SystemProbe(),
		User:        BuildUniquenessProbePrompt(questionText),
		Temperature: 0.0,
		MaxTokens:   64,
	})
	if err != nil {
		return fmt.Errorf("uniqueness probe (prompt %s): %w", PromptUniquenessProbe, err)
	}
	reply := strings.TrimSpace(result.Text)
	upper := strings.ToUpper(reply)
	if !strings.HasPrefix(upper, "YES") {
		return types.ErrAnswerNotUnique
	}
	probed := strings.TrimSpace(reply[3:])
	if common.NormalizeAnswer(probed) != common.NormalizeAnswer(answer) {
		return types.ErrAnswerNotUnique
	}
	return nil
}
