package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiplusall/researchbench/internal/types"
)

func guardFixture(t *testing.T) (*CorrelationGuardService, *scriptedCompletion) {
	t.Helper()
	completion := newScripted()
	guard := NewCorrelationGuard(testTreeConfig(), completion).(*CorrelationGuardService)
	return guard, completion
}

func essentialKeywords(texts ...string) []types.Keyword {
	keywords := make([]types.Keyword, len(texts))
	for i, text := range texts {
		keywords[i] = types.Keyword{Text: text, Position: i, Essential: true}
	}
	return keywords
}

func rootForGuard() types.ShortAnswer {
	return types.ShortAnswer{Text: "1957", ContextWindow: satelliteDoc}
}

func parentForGuard() *types.Query {
	return &types.Query{
		Text:     "Which year saw the launch of Sputnik by the Soviet Union?",
		Answer:   "1957",
		Layer:    0,
		Keywords: essentialKeywords("Sputnik", "Soviet Union"),
	}
}

func TestGuardRejectsDirectMention(t *testing.T) {
	guard, _ := guardFixture(t)
	candidate := &types.Query{
		Text:     "What happened in 1957 at the spaceport?",
		Answer:   "Sputnik",
		Layer:    1,
		Keywords: essentialKeywords("spaceport"),
	}
	results, err := guard.Check(context.Background(), candidate, []*types.Query{parentForGuard()}, "Sputnik", rootForGuard())
	require.NoError(t, err)
	failed, bad := types.FirstFailed(results)
	require.True(t, bad)
	require.Equal(t, types.GateDirectMention, failed.Gate)
}

func TestGuardRejectsParentKeywordOverlap(t *testing.T) {
	guard, _ := guardFixture(t)
	candidate := &types.Query{
		Text:     "Which nation other than the Soviet Union bid for the contract?",
		Answer:   "Sputnik",
		Layer:    1,
		Keywords: essentialKeywords("Soviet Union", "contract"),
	}
	results, err := guard.Check(context.Background(), candidate, []*types.Query{parentForGuard()}, "Sputnik", rootForGuard())
	require.NoError(t, err)
	failed, bad := types.FirstFailed(results)
	require.True(t, bad)
	require.Equal(t, types.GateKeywordOverlap, failed.Gate)
}

func TestGuardAllowsExtendedKeywordItself(t *testing.T) {
	guard, _ := guardFixture(t)
	candidate := &types.Query{
		Text:     "What satellite name comes from the Russian word for fellow traveler?",
		Answer:   "Sputnik",
		Layer:    1,
		Keywords: essentialKeywords("Russian", "satellite", "Sputnik"),
	}
	results, err := guard.Check(context.Background(), candidate, []*types.Query{parentForGuard()}, "Sputnik", rootForGuard())
	require.NoError(t, err)
	require.True(t, types.AllPassed(results))
}

func TestGuardRejectsHighSimilarity(t *testing.T) {
	guard, _ := guardFixture(t)
	candidate := &types.Query{
		Text:     "Which year saw the launch of the first rocket by the union of states?",
		Answer:   "Sputnik",
		Layer:    1,
		Keywords: essentialKeywords("rocket"),
	}
	results, err := guard.Check(context.Background(), candidate, []*types.Query{parentForGuard()}, "Sputnik", rootForGuard())
	require.NoError(t, err)
	failed, bad := types.FirstFailed(results)
	require.True(t, bad)
	require.Equal(t, types.GateSemanticSimilarity, failed.Gate)
}

func TestGuardRejectsExposureRisk(t *testing.T) {
	guard, completion := guardFixture(t)
	completion.onExposure = func(string) (string, bool) { return "MEDIUM", true }
	candidate := &types.Query{
		Text:     "What term for an orbiting body derives from a Latin word for attendant?",
		Answer:   "satellite",
		Layer:    1,
		Keywords: essentialKeywords("Latin", "attendant"),
	}
	results, err := guard.Check(context.Background(), candidate, []*types.Query{parentForGuard()}, "satellite", rootForGuard())
	require.NoError(t, err)
	failed, bad := types.FirstFailed(results)
	require.True(t, bad)
	require.Equal(t, types.GateObviousImplication, failed.Gate)
}

func TestRiskLevels(t *testing.T) {
	require.True(t, types.RiskSafe.Acceptable())
	require.True(t, types.RiskLow.Acceptable())
	require.False(t, types.RiskMedium.Acceptable())
	require.False(t, types.RiskHigh.Acceptable())
	require.Equal(t, types.RiskHigh, types.ParseRiskLevel("gibberish"))
}
