package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/aiplusall/researchbench/internal/common"
	"github.com/aiplusall/researchbench/internal/config"
	"github.com/aiplusall/researchbench/internal/logger"
	"github.com/aiplusall/researchbench/internal/types"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

// KeywordMinimizerService runs the masking-test loop: a keyword stays only
// if masking it makes the reference probe unable to uniquely re-derive the
// answer.
type KeywordMinimizerService struct {
	completion interfaces.CompletionClient
	keywordMin int
}

// NewKeywordMinimizer creates the minimizer.
func NewKeywordMinimizer(cfg *config.Config, completion interfaces.CompletionClient) interfaces.KeywordMinimizer {
	return &KeywordMinimizerService{completion: completion, keywordMin: cfg.Tree.KeywordMin}
}

// Minimize returns the essential keywords of the question in position
// order, with the necessity scores of every candidate. Fails with
// types.ErrRootNotMinimal when fewer than keywordMin survive.
func (s *KeywordMinimizerService) Minimize(ctx context.Context, questionText, answer string, candidates []types.Keyword) ([]types.Keyword, []types.KeywordScore, error) {
	scored := make([]types.Keyword, len(candidates))
	copy(scored, candidates)
	for i := range scored {
		scored[i].Uniqueness = uniquenessScore(scored[i].Text, answer)
	}

	// Equally redundant keywords are pruned deterministically: masking
	// tests run in ascending uniqueness order so the weakest keyword is
	// the first to be dropped.
	order := make([]int, len(scored))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scored[order[a]].Uniqueness < scored[order[b]].Uniqueness
	})

	scores := make([]types.KeywordScore, 0, len(scored))
	for _, idx := range order {
		k := &scored[idx]
		if !common.ContainsToken(questionText, k.Text) {
			// a keyword that no longer appears in the question cannot be
			// essential to its text
			k.Essential = false
			scores = append(scores, types.KeywordScore{Text: k.Text, Score: k.Uniqueness, Essential: false})
			continue
		}

		masked := common.MaskKeyword(questionText, k.Text)
		stillUnique, err := s.probeMasked(ctx, masked, answer)
		if err != nil {
			return nil, nil, fmt.Errorf("masking probe for %q: %w", k.Text, err)
		}
		// Only an explicit YES from the probe drops the keyword; anything
		// else (including an ungrammatical masked question the probe
		// cannot endorse) keeps it essential.
		k.Essential = !stillUnique
		scores = append(scores, types.KeywordScore{Text: k.Text, Score: k.Uniqueness, Essential: k.Essential})
	}

	essential := make([]types.Keyword, 0, len(scored))
	for _, k := range scored {
		if k.Essential {
			essential = append(essential, k)
		}
	}
	sort.SliceStable(essential, func(a, b int) bool {
		return essential[a].Position < essential[b].Position
	})

	if len(essential) < s.keywordMin {
		logger.Infof(ctx, "minimized keyword set collapsed to %d (< %d)", len(essential), s.keywordMin)
		return nil, scores, types.ErrRootNotMinimal
	}
	return essential, scores, nil
}

// probeMasked asks the reference model whether the masked question still
// uniquely determines the answer.
func (s *KeywordMinimizerService) probeMasked(ctx context.Context, maskedText, answer string) (bool, error) {
	result, err := s.completion.Complete(ctx, &types.CompletionRequest{
		System:      SystemProbe(),
		User:        BuildMaskProbePrompt(maskedText, answer),
		Temperature: 0.0,
		MaxTokens:   8,
	})
	if err != nil {
		return false, err
	}
	verdict := strings.ToUpper(strings.TrimSpace(result.Text))
	return strings.HasPrefix(verdict, "YES"), nil
}

// uniquenessScore mixes a length factor (0.2), a specificity factor for
// numerals and proper nouns (0.4), association strength with the answer
// (0.3) and a generic-word penalty (0.1). Used for removal tie-breaks
// only.
func uniquenessScore(keyword, answer string) float64 {
	length := min(1.0, float64(len([]rune(keyword)))/12.0)

	specificity := 0.0
	hasDigit, hasUpper := false, false
	for _, r := range keyword {
		if unicode.IsDigit(r) {
			hasDigit = true
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	if hasDigit {
		specificity = 1.0
	} else if hasUpper {
		specificity = 0.8
	} else {
		specificity = 0.3
	}

	association := common.CosineSimilarity(keyword, answer)
	if common.ContainsToken(answer, keyword) || common.ContainsToken(keyword, answer) {
		association = 1.0
	}

	penalty := 0.0
	tokens := common.Tokenize(keyword)
	for _, t := range tokens {
		if common.IsStopword(t) {
			penalty = 1.0
			break
		}
	}

	return 0.2*length + 0.4*specificity + 0.3*association - 0.1*penalty
}
