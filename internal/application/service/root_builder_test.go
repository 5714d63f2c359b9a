package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiplusall/researchbench/internal/types"
)

func sputnikShortAnswer() types.ShortAnswer {
	return types.ShortAnswer{
		Text:          "1957",
		Kind:          types.AnswerKindDate,
		CharOffset:    58,
		ContextWindow: satelliteDoc,
		Confidence:    0.61,
	}
}

func TestRootBuilderSuccess(t *testing.T) {
	cfg := testTreeConfig()
	completion := newScripted()
	minimizer := NewKeywordMinimizer(cfg, completion)
	builder := NewRootQueryBuilder(cfg, completion, &failingSearch{}, minimizer)
	rec := NewTrajectory()

	ctx := WithCallCounter(context.Background(), &CallCounter{})
	query, err := builder.BuildRoot(ctx, sputnikShortAnswer(), satelliteDoc, rec)
	require.NoError(t, err)

	// the leading "Question:" artefact is stripped before anything else
	require.Equal(t, "Which year saw the launch of Sputnik by the Soviet Union?", query.Text)
	require.Equal(t, "1957", query.Answer)
	require.Equal(t, 0, query.Layer)
	require.Equal(t, types.GenerationRoot, query.GenerationMethod)
	require.GreaterOrEqual(t, len(query.EssentialKeywords()), 2)

	entries := rec.Entries()
	require.NotEmpty(t, entries)
	require.Equal(t, types.StepRootBuild, entries[len(entries)-1].Step)
	require.NotEmpty(t, entries[len(entries)-1].KeywordNecessity)
}

func TestRootBuilderNotMinimalAfterAttempts(t *testing.T) {
	cfg := testTreeConfig()
	completion := newScripted()
	completion.essentialByAnswer["1957"] = []string{"Sputnik"} // one essential keyword only
	minimizer := NewKeywordMinimizer(cfg, completion)
	builder := NewRootQueryBuilder(cfg, completion, &failingSearch{}, minimizer)
	rec := NewTrajectory()

	ctx := WithCallCounter(context.Background(), &CallCounter{})
	_, err := builder.BuildRoot(ctx, sputnikShortAnswer(), satelliteDoc, rec)
	require.True(t, errors.Is(err, types.ErrRootNotMinimal))

	// one trajectory entry per failed attempt
	attempts := 0
	for _, entry := range rec.Entries() {
		if entry.Reject == types.RejectRootNotMinimal {
			attempts++
		}
	}
	require.Equal(t, cfg.Tree.MaxRegenerateAttempts, attempts)
}

func TestRootBuilderAnswerNotUnique(t *testing.T) {
	cfg := testTreeConfig()
	completion := newScripted()
	// the probe cannot re-derive the answer for this question
	completion.answersByQuestion = map[string]string{}
	minimizer := NewKeywordMinimizer(cfg, completion)
	builder := NewRootQueryBuilder(cfg, completion, &failingSearch{}, minimizer)

	ctx := WithCallCounter(context.Background(), &CallCounter{})
	_, err := builder.BuildRoot(ctx, sputnikShortAnswer(), satelliteDoc, NewTrajectory())
	require.True(t, errors.Is(err, types.ErrAnswerNotUnique))
}

func TestRootBuilderRejectsAnswerInQuestion(t *testing.T) {
	cfg := testTreeConfig()
	completion := newScripted()
	completion.questionsByAnswer["1957"] = "Which satellite flew in 1957 before any other?"
	minimizer := NewKeywordMinimizer(cfg, completion)
	builder := NewRootQueryBuilder(cfg, completion, &failingSearch{}, minimizer)

	ctx := WithCallCounter(context.Background(), &CallCounter{})
	_, err := builder.BuildRoot(ctx, sputnikShortAnswer(), satelliteDoc, NewTrajectory())
	require.True(t, errors.Is(err, types.ErrAnswerNotUnique))
}
