package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/aiplusall/researchbench/internal/common"
	"github.com/aiplusall/researchbench/internal/config"
	"github.com/aiplusall/researchbench/internal/types"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

// CorrelationGuardService enforces the two acceptance gates of extension
// candidates: non-correlation with every ancestor on another layer, and
// no exposure of the root short answer. Lexical gates run before LLM
// gates so obviously bad candidates cost no completion calls.
type CorrelationGuardService struct {
	completion          interfaces.CompletionClient
	similarityThreshold float64
}

// NewCorrelationGuard creates the guard.
func NewCorrelationGuard(cfg *config.Config, completion interfaces.CompletionClient) interfaces.CorrelationGuard {
	return &CorrelationGuardService{
		completion:          completion,
		similarityThreshold: cfg.Tree.SimilarityRejectAbove,
	}
}

// Check validates a candidate. The returned gate results cover every gate
// that ran; evaluation stops at the first failure.
func (s *CorrelationGuardService) Check(ctx context.Context, candidate *types.Query, ancestors []*types.Query, extendedKeyword string, root types.ShortAnswer) ([]types.GateResult, error) {
	var results []types.GateResult

	fail := func(r types.GateResult) []types.GateResult {
		results = append(results, r)
		return results
	}
	pass := func(r types.GateResult) {
		r.Passed = true
		results = append(results, r)
	}

	// --- no-root-answer-exposure: direct mention -------------------------
	if common.ContainsToken(candidate.Text, root.Text) {
		return fail(types.GateResult{
			Gate:   types.GateDirectMention,
			Detail: fmt.Sprintf("question mentions root answer %q", root.Text),
		}), nil
	}
	pass(types.GateResult{Gate: types.GateDirectMention})

	// --- non-correlation: keyword overlap with the direct parent ---------
	// Deeper ancestors are the circular guard's territory (keyword-cycle
	// pattern); here only the parent's keyword set applies, with the
	// extended keyword exempt.
	extendedNorm := common.NormalizeAnswer(extendedKeyword)
	if len(ancestors) > 0 {
		parent := ancestors[0]
		for _, k := range candidate.EssentialKeywords() {
			kNorm := common.NormalizeAnswer(k.Text)
			if kNorm == extendedNorm {
				continue
			}
			for _, pk := range parent.EssentialKeywords() {
				if kNorm == common.NormalizeAnswer(pk.Text) {
					return fail(types.GateResult{
						Gate:   types.GateKeywordOverlap,
						Detail: fmt.Sprintf("keyword %q shared with the parent question", k.Text),
					}), nil
				}
			}
		}
	}
	pass(types.GateResult{Gate: types.GateKeywordOverlap})

	// --- non-correlation: semantic similarity across layers --------------
	for _, ancestor := range ancestors {
		if ancestor.Layer == candidate.Layer {
			continue
		}
		similarity := common.CosineSimilarity(candidate.Text, ancestor.Text)
		if similarity > s.similarityThreshold {
			return fail(types.GateResult{
				Gate:   types.GateSemanticSimilarity,
				Score:  similarity,
				Detail: fmt.Sprintf("similarity %.2f with layer-%d question exceeds %.2f", similarity, ancestor.Layer, s.similarityThreshold),
			}), nil
		}
	}
	pass(types.GateResult{Gate: types.GateSemanticSimilarity})

	// --- no-root-answer-exposure: contextual clue density ----------------
	clueCount := 0
	for _, k := range candidate.EssentialKeywords() {
		if common.NormalizeAnswer(k.Text) == extendedNorm {
			continue
		}
		if common.CosineSimilarity(k.Text+" "+candidate.Text, root.ContextWindow) > s.similarityThreshold {
			clueCount++
		}
	}
	if clueCount > 1 {
		return fail(types.GateResult{
			Gate:   types.GateClueDensity,
			Score:  float64(clueCount),
			Detail: fmt.Sprintf("%d essential keywords cluster around the root answer context", clueCount),
		}), nil
	}
	pass(types.GateResult{Gate: types.GateClueDensity, Score: float64(clueCount)})

	// --- non-correlation: LLM gates against each ancestor ----------------
	for _, ancestor := range ancestors {
		if ancestor.Layer == candidate.Layer {
			continue
		}
		sameDomain, err := s.probeSameDomain(ctx, candidate.Text, ancestor.Text)
		if err != nil {
			return results, err
		}
		if sameDomain {
			return fail(types.GateResult{
				Gate:   types.GateTopicalDomain,
				Detail: fmt.Sprintf("same narrow domain as layer-%d question", ancestor.Layer),
			}), nil
		}

		dependent, err := s.probeLogicalDependency(ctx, candidate, ancestor)
		if err != nil {
			return results, err
		}
		if dependent {
			return fail(types.GateResult{
				Gate:   types.GateLogicalDependency,
				Detail: fmt.Sprintf("answer trivially entails layer-%d answer", ancestor.Layer),
			}), nil
		}
	}
	pass(types.GateResult{Gate: types.GateTopicalDomain})
	pass(types.GateResult{Gate: types.GateLogicalDependency})

	// --- no-root-answer-exposure: LLM probes -----------------------------
	risk, err := s.probeExposure(ctx, candidate.Text, root.Text)
	if err != nil {
		return results, err
	}
	if !risk.Acceptable() {
		return fail(types.GateResult{
			Gate:   types.GateObviousImplication,
			Detail: fmt.Sprintf("exposure risk %s", risk),
		}), nil
	}
	pass(types.GateResult{Gate: types.GateObviousImplication, Detail: string(risk)})

	shortcut, err := s.probeShortPath(ctx, candidate.Text, root.Text)
	if err != nil {
		return results, err
	}
	if shortcut {
		return fail(types.GateResult{
			Gate:   types.GateShortPath,
			Detail: "root answer reachable in one step from the question alone",
		}), nil
	}
	pass(types.GateResult{Gate: types.GateShortPath})

	return results, nil
}

func (s *CorrelationGuardService) probeSameDomain(ctx context.Context, questionA, questionB string) (bool, error) {
	result, err := s.completion.Complete(ctx, &types.CompletionRequest{
		System:      SystemProbe(),
		User:        BuildDomainClassifyPrompt(questionA, questionB),
		Temperature: 0.0,
		MaxTokens:   8,
	})
	if err != nil {
		return false, fmt.Errorf("domain classify (prompt %s): %w", PromptDomainClassify, err)
	}
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(result.Text)), "SAME"), nil
}

func (s *CorrelationGuardService) probeLogicalDependency(ctx context.Context, candidate, ancestor *types.Query) (bool, error) {
	result, err := s.completion.Complete(ctx, &types.CompletionRequest{
		System:      SystemProbe(),
		User:        BuildLogicalDependencyPrompt(candidate.Answer, candidate.Text, ancestor.Answer, ancestor.Text),
		Temperature: 0.0,
		MaxTokens:   8,
	})
	if err != nil {
		return false, fmt.Errorf("logical dependency probe (prompt %s): %w", PromptLogicalDependency, err)
	}
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(result.Text)), "DEPENDENT"), nil
}

func (s *CorrelationGuardService) probeExposure(ctx context.Context, questionText, protectedAnswer string) (types.RiskLevel, error) {
	result, err := s.completion.Complete(ctx, &types.CompletionRequest{
		System:      SystemProbe(),
		User:        BuildExposureProbePrompt(questionText, protectedAnswer),
		Temperature: 0.0,
		MaxTokens:   8,
	})
	if err != nil {
		return types.RiskHigh, fmt.Errorf("exposure probe (prompt %s): %w", PromptExposureProbe, err)
	}
	return types.ParseRiskLevel(strings.ToUpper(strings.TrimSpace(result.Text))), nil
}

func (s *CorrelationGuardService) probeShortPath(ctx context.Context, questionText, rootAnswer string) (bool, error) {
	result, err := s.completion.Complete(ctx, &types.CompletionRequest{
		System:      SystemProbe(),
		User:        BuildShortPathProbePrompt(questionText),
		Temperature: 0.0,
		MaxTokens:   32,
	})
	if err != nil {
		return false, fmt.Errorf("short path probe (prompt %s): %w", PromptShortPathProbe, err)
	}
	return common.NormalizeAnswer(result.Text) == common.NormalizeAnswer(rootAnswer), nil
}
