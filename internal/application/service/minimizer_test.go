package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiplusall/researchbench/internal/types"
)

func rootQuestionKeywords() []types.Keyword {
	return []types.Keyword{
		{Text: "Sputnik", Position: 30},
		{Text: "Soviet Union", Position: 45},
		{Text: "launch", Position: 19},
	}
}

func TestMinimizerDropsNonEssentialKeywords(t *testing.T) {
	completion := newScripted()
	minimizer := NewKeywordMinimizer(testTreeConfig(), completion)

	essential, scores, err := minimizer.Minimize(context.Background(),
		"Which year saw the launch of Sputnik by the Soviet Union?", "1957", rootQuestionKeywords())
	require.NoError(t, err)
	require.Len(t, essential, 2)
	require.Len(t, scores, 3)

	// position order retained
	require.Equal(t, "Sputnik", essential[0].Text)
	require.Equal(t, "Soviet Union", essential[1].Text)
	for _, k := range essential {
		require.True(t, k.Essential)
	}
	for _, score := range scores {
		if score.Text == "launch" {
			require.False(t, score.Essential)
		}
	}
}

func TestMinimizerKeywordMinViolation(t *testing.T) {
	completion := newScripted()
	// only Sputnik is load-bearing for this variant
	completion.essentialByAnswer["1957"] = []string{"Sputnik"}
	minimizer := NewKeywordMinimizer(testTreeConfig(), completion)

	_, scores, err := minimizer.Minimize(context.Background(),
		"Which year saw the launch of Sputnik by the Soviet Union?", "1957", rootQuestionKeywords())
	require.True(t, errors.Is(err, types.ErrRootNotMinimal))
	require.NotEmpty(t, scores)
}

func TestMinimizerKeywordAbsentFromQuestion(t *testing.T) {
	completion := newScripted()
	minimizer := NewKeywordMinimizer(testTreeConfig(), completion)

	keywords := append(rootQuestionKeywords(), types.Keyword{Text: "Baikonur", Position: 99})
	essential, _, err := minimizer.Minimize(context.Background(),
		"Which year saw the launch of Sputnik by the Soviet Union?", "1957", keywords)
	require.NoError(t, err)
	for _, k := range essential {
		require.NotEqual(t, "Baikonur", k.Text)
	}
}

func TestUniquenessScoreComponents(t *testing.T) {
	numeral := uniquenessScore("1957", "1957")
	generic := uniquenessScore("the", "1957")
	proper := uniquenessScore("Sputnik", "1957")
	require.Greater(t, numeral, proper)
	require.Greater(t, proper, generic)
}
