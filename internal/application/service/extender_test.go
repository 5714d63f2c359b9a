package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiplusall/researchbench/internal/types"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

func extenderFixture(t *testing.T, completion *scriptedCompletion) (*SeriesExtenderService, *interfaces.ExtendRequest) {
	t.Helper()
	cfg := testTreeConfig()
	minimizer := NewKeywordMinimizer(cfg, completion)
	correlation := NewCorrelationGuard(cfg, completion)
	circular := NewCircularGuard(cfg)
	extender := NewSeriesExtender(cfg, completion, &failingSearch{}, minimizer, correlation, circular)

	root := &types.TreeNode{
		Query: &types.Query{
			ID:     "root",
			Text:   "Which year saw the launch of Sputnik by the Soviet Union?",
			Answer: "1957",
			Layer:  0,
			Keywords: []types.Keyword{
				{Text: "Sputnik", Position: 30, Essential: true},
				{Text: "Soviet Union", Position: 45, Essential: true},
			},
		},
		Branch: types.BranchRoot,
	}
	req := &interfaces.ExtendRequest{
		Parent:          root,
		Keyword:         root.Query.Keywords[0],
		RootShortAnswer: types.ShortAnswer{Text: "1957", ContextWindow: satelliteDoc},
		Recorder:        NewTrajectory(),
	}
	return extender, req
}

func TestSeriesExtenderAcceptsCandidate(t *testing.T) {
	completion := newScripted()
	extender, req := extenderFixture(t, completion)

	ctx := WithCallCounter(context.Background(), &CallCounter{})
	outcome, err := extender.Extend(ctx, req)
	require.NoError(t, err)
	require.True(t, outcome.Accepted())
	require.Equal(t, "Sputnik", outcome.Query.Answer)
	require.Equal(t, 1, outcome.Query.Layer)
	require.Equal(t, types.GenerationSeries, outcome.Query.GenerationMethod)
	require.GreaterOrEqual(t, len(outcome.Query.EssentialKeywords()), 2)

	entries := req.Recorder.Entries()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	require.Equal(t, types.StepSeriesExtend, last.Step)
	require.Equal(t, "Which year saw the launch of Sputnik by the Soviet Union?", last.ParentQuestion)
	require.NotEmpty(t, last.Validation)
}

func TestExtenderRejectsQuestionContainingItsAnswer(t *testing.T) {
	completion := newScripted()
	completion.questionsByAnswer["Sputnik"] = "Why is Sputnik famous in space history?"
	extender, req := extenderFixture(t, completion)

	ctx := WithCallCounter(context.Background(), &CallCounter{})
	outcome, err := extender.Extend(ctx, req)
	require.NoError(t, err)
	require.False(t, outcome.Accepted())
	require.Equal(t, types.RejectAnswerNotUnique, outcome.Reason)
}

func TestExtenderRegeneratesWithStricterInstructions(t *testing.T) {
	completion := newScripted()
	attempts := 0
	good := completion.questionsByAnswer["Sputnik"]
	completion.onGenerate = func(req *types.CompletionRequest) (string, bool) {
		if !strings.Contains(req.User, "EXISTING QUESTION") {
			return "", false
		}
		attempts++
		if attempts < 3 {
			// first two attempts leak the root answer
			return "What launched in 1957 from the steppe?", true
		}
		require.Contains(t, req.User, "rejected for topical overlap")
		return good, true
	}
	extender, req := extenderFixture(t, completion)

	ctx := WithCallCounter(context.Background(), &CallCounter{})
	outcome, err := extender.Extend(ctx, req)
	require.NoError(t, err)
	require.True(t, outcome.Accepted())
	require.Equal(t, 3, attempts)

	rejections := 0
	for _, entry := range req.Recorder.Entries() {
		if entry.Reject == types.RejectExposesRootAnswer {
			rejections++
		}
	}
	require.Equal(t, 2, rejections)
}

func TestExtenderDropsKeywordAfterFinalFailure(t *testing.T) {
	completion := newScripted()
	completion.questionsByAnswer["Sputnik"] = "What flew first in 1957?"
	extender, req := extenderFixture(t, completion)

	ctx := WithCallCounter(context.Background(), &CallCounter{})
	outcome, err := extender.Extend(ctx, req)
	require.NoError(t, err)
	require.False(t, outcome.Accepted())
	require.Equal(t, types.RejectExposesRootAnswer, outcome.Reason)
	require.Len(t, req.Recorder.Entries(), testTreeConfig().Tree.MaxRegenerateAttempts)
}
