package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiplusall/researchbench/internal/types"
)

func TestExtractorFindsDateAnchor(t *testing.T) {
	extractor := NewShortAnswerExtractor(testTreeConfig())
	answers, err := extractor.Extract(context.Background(), &types.Document{
		DocID:   "d1",
		Content: satelliteDoc,
	})
	require.NoError(t, err)
	require.Len(t, answers, 1)
	require.Equal(t, "1957", answers[0].Text)
	require.Equal(t, types.AnswerKindDate, answers[0].Kind)
	require.Greater(t, answers[0].Confidence, 0.0)
	require.Contains(t, answers[0].ContextWindow, "1957")
}

func TestExtractorRejectsSubjectiveSentences(t *testing.T) {
	extractor := NewShortAnswerExtractor(testTreeConfig())
	_, err := extractor.Extract(context.Background(), &types.Document{
		DocID:   "d2",
		Content: "I believe the battle happened around 1815, but nobody recorded it.",
	})
	require.True(t, errors.Is(err, types.ErrNoAnchorFound))
}

func TestExtractorNoAnchors(t *testing.T) {
	extractor := NewShortAnswerExtractor(testTreeConfig())
	_, err := extractor.Extract(context.Background(), &types.Document{
		DocID:   "d3",
		Content: "it is said that he won the prize that year.",
	})
	require.True(t, errors.Is(err, types.ErrNoAnchorFound))
}

func TestExtractorRanksAndLimits(t *testing.T) {
	cfg := testTreeConfig()
	cfg.Tree.TopKAnswersPerDoc = 2
	extractor := NewShortAnswerExtractor(cfg)
	answers, err := extractor.Extract(context.Background(), &types.Document{
		DocID: "d4",
		Content: "The Apollo program reached the Moon in 1969. " +
			"Its Saturn V rocket weighed 2970 tonnes at liftoff.",
	})
	require.NoError(t, err)
	require.Len(t, answers, 2)
	for _, a := range answers {
		require.NotEmpty(t, a.Text)
		require.GreaterOrEqual(t, a.Confidence, answers[len(answers)-1].Confidence)
	}
}

func TestExtractorTieBreakByOffset(t *testing.T) {
	extractor := NewShortAnswerExtractor(testTreeConfig())
	answers, err := extractor.Extract(context.Background(), &types.Document{
		DocID:   "d5",
		Content: "alpha rover landed in 1976. delta rover landed in 1997.",
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(answers), 2)
	// equal confidence: earlier offset wins
	require.Less(t, answers[0].CharOffset, answers[1].CharOffset)
}
