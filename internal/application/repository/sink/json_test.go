package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiplusall/researchbench/internal/types"
)

func sampleTree() *types.AgentTree {
	root := &types.TreeNode{
		Query: &types.Query{
			ID:     "q-root",
			Text:   "Which year saw the launch of Sputnik by the Soviet Union?",
			Answer: "1957",
			Keywords: []types.Keyword{
				{Text: "Sputnik", Essential: true},
				{Text: "Soviet Union", Essential: true},
			},
			Layer:            0,
			GenerationMethod: types.GenerationRoot,
		},
		Branch: types.BranchRoot,
	}
	child := &types.TreeNode{
		Query: &types.Query{
			ID:               "q-child",
			Text:             "What satellite name comes from the Russian word for fellow traveler?",
			Answer:           "Sputnik",
			Layer:            1,
			GenerationMethod: types.GenerationSeries,
		},
		Parent: root,
		Branch: types.BranchSeries,
	}
	root.Children = []*types.TreeNode{child}

	return &types.AgentTree{
		ID:              "tree-1",
		DocID:           "doc-1",
		TopicID:         "topic-1",
		RootShortAnswer: types.ShortAnswer{Text: "1957", Kind: types.AnswerKindDate},
		Root:            root,
		Composites: types.Composites{
			Nested:     "(Q2: ..., Q1: ...)",
			Fused:      "fused text",
			Ambiguated: "ambiguated text",
		},
		FallbackFlags: types.FallbackFlags{Fused: true},
		Trajectory: []types.TrajectoryEntry{
			{Step: types.StepRootBuild, GenerationMethod: types.GenerationRoot},
			{Step: types.StepSeriesExtend, Layer: 1, GenerationMethod: types.GenerationSeries, Reject: types.RejectCycleDetected, Error: "keyword cycle"},
		},
		Statistics: types.TreeStatistics{NodeCount: 2, CompletionCalls: 9, TotalTokens: 135},
	}
}

func TestJSONSinkWritesTreeAndAggregate(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONSink(dir)
	require.NoError(t, err)

	require.NoError(t, s.WriteTree(context.Background(), sampleTree()))
	require.NoError(t, s.Close(context.Background()))

	raw, err := os.ReadFile(filepath.Join(dir, "trees", "tree-1.json"))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "tree-1", decoded["id"])
	require.Contains(t, decoded, "root_short_answer")
	require.Contains(t, decoded, "root_query")
	require.Contains(t, decoded, "extensions")
	require.Contains(t, decoded, "composites")
	require.Contains(t, decoded, "trajectory")
	require.Contains(t, decoded, "statistics")

	extensions := decoded["extensions"].([]interface{})
	require.Len(t, extensions, 1)
	extension := extensions[0].(map[string]interface{})
	require.Equal(t, "q-root", extension["parent_id"])
	require.Equal(t, "SERIES", extension["branch"])

	composites := decoded["composites"].(map[string]interface{})
	fallback := composites["fallback"].(map[string]interface{})
	require.Equal(t, true, fallback["fused"])

	aggregate, err := os.ReadFile(filepath.Join(dir, "trees.jsonl"))
	require.NoError(t, err)
	require.Contains(t, string(aggregate), `"id":"tree-1"`)
}
