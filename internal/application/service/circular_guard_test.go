package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiplusall/researchbench/internal/types"
)

func fixtureTree() *types.AgentTree {
	root := &types.TreeNode{
		Query: &types.Query{
			ID:       "root",
			Text:     "Which year saw the launch of Sputnik by the Soviet Union?",
			Answer:   "1957",
			Layer:    0,
			Keywords: essentialKeywords("Sputnik", "Soviet Union"),
		},
		Branch: types.BranchRoot,
	}
	child := &types.TreeNode{
		Query: &types.Query{
			ID:       "child",
			Text:     "What satellite name comes from the Russian word for fellow traveler?",
			Answer:   "Sputnik",
			Layer:    1,
			Keywords: essentialKeywords("Russian", "satellite"),
		},
		Parent: root,
		Branch: types.BranchSeries,
	}
	root.Children = []*types.TreeNode{child}
	return &types.AgentTree{
		ID:              "t1",
		RootShortAnswer: types.ShortAnswer{Text: "1957", ContextWindow: satelliteDoc},
		Root:            root,
	}
}

func TestCircularGuardDirectRepetition(t *testing.T) {
	guard := NewCircularGuard(testTreeConfig())
	tree := fixtureTree()
	candidate := &types.Query{
		Text:     "What satellite name comes from the russian word for fellow traveler?",
		Answer:   "Russian",
		Layer:    2,
		Keywords: essentialKeywords("fellow"),
	}
	results, err := guard.CheckCandidate(context.Background(), candidate, tree.Root.Children[0])
	require.NoError(t, err)
	failed, bad := types.FirstFailed(results)
	require.True(t, bad)
	require.Equal(t, types.GateDirectRepetition, failed.Gate)
}

func TestCircularGuardReverseCycle(t *testing.T) {
	guard := NewCircularGuard(testTreeConfig())
	tree := fixtureTree()
	// asks the parent's question backwards: contains the parent's answer,
	// answered by one of the parent's keywords
	candidate := &types.Query{
		Text:     "Which craft called Sputnik carried the first radio beacon?",
		Answer:   "Russian",
		Layer:    2,
		Keywords: essentialKeywords("radio", "beacon"),
	}
	results, err := guard.CheckCandidate(context.Background(), candidate, tree.Root.Children[0])
	require.NoError(t, err)
	failed, bad := types.FirstFailed(results)
	require.True(t, bad)
	require.Equal(t, types.GateReverseCycle, failed.Gate)
}

func TestCircularGuardKeywordCycle(t *testing.T) {
	guard := NewCircularGuard(testTreeConfig())
	tree := fixtureTree()
	candidate := &types.Query{
		Text:     "What craft does the Soviet Union monitor above the atmosphere?",
		Answer:   "satellite",
		Layer:    2,
		Keywords: essentialKeywords("Soviet Union", "atmosphere"),
	}
	results, err := guard.CheckCandidate(context.Background(), candidate, tree.Root.Children[0])
	require.NoError(t, err)
	failed, bad := types.FirstFailed(results)
	require.True(t, bad)
	require.Equal(t, types.GateKeywordCycle, failed.Gate)
}

func TestCircularGuardAcceptsCleanCandidate(t *testing.T) {
	guard := NewCircularGuard(testTreeConfig())
	tree := fixtureTree()
	candidate := &types.Query{
		Text:     "Which language is the most spoken Slavic tongue?",
		Answer:   "Russian",
		Layer:    2,
		Keywords: essentialKeywords("Slavic", "spoken"),
	}
	results, err := guard.CheckCandidate(context.Background(), candidate, tree.Root.Children[0])
	require.NoError(t, err)
	require.True(t, types.AllPassed(results))
}

func TestCircularGuardSweepCleanTree(t *testing.T) {
	guard := NewCircularGuard(testTreeConfig())
	results, err := guard.Sweep(context.Background(), fixtureTree())
	require.NoError(t, err)
	require.True(t, types.AllPassed(results))
}

func TestCircularGuardSweepFindsKeywordCycle(t *testing.T) {
	guard := NewCircularGuard(testTreeConfig())
	tree := fixtureTree()
	parent := tree.Root.Children[0]
	parent.Children = []*types.TreeNode{{
		Query: &types.Query{
			ID:       "grandchild",
			Text:     "What craft does the Soviet Union monitor above the atmosphere?",
			Answer:   "satellite",
			Layer:    2,
			Keywords: essentialKeywords("Soviet Union", "atmosphere"),
		},
		Parent: parent,
		Branch: types.BranchSeries,
	}}
	results, err := guard.Sweep(context.Background(), tree)
	require.NoError(t, err)
	failed, bad := types.FirstFailed(results)
	require.True(t, bad)
	require.Equal(t, types.GateKeywordCycle, failed.Gate)
}
