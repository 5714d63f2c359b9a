package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aiplusall/researchbench/internal/logger"
	"github.com/aiplusall/researchbench/internal/types"
)

// JSONSink writes one JSON file per tree plus an append-only trees.jsonl
// aggregate stream. Writes are serialized; each tree is emitted
// atomically (temp file + rename for the per-tree record).
type JSONSink struct {
	mu        sync.Mutex
	outputDir string
	aggregate *os.File
}

// NewJSONSink prepares the output directory and aggregate stream.
func NewJSONSink(outputDir string) (*JSONSink, error) {
	treesDir := filepath.Join(outputDir, "trees")
	if err := os.MkdirAll(treesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	aggregate, err := os.OpenFile(filepath.Join(outputDir, "trees.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open aggregate stream: %w", err)
	}
	return &JSONSink{outputDir: outputDir, aggregate: aggregate}, nil
}

// WriteTree emits one complete tree.
func (s *JSONSink) WriteTree(ctx context.Context, tree *types.AgentTree) error {
	record, err := json.MarshalIndent(treeRecord(tree), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tree %s: %w", tree.ID, err)
	}
	line, err := json.Marshal(treeRecord(tree))
	if err != nil {
		return fmt.Errorf("marshal tree %s: %w", tree.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.outputDir, "trees", tree.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, record, 0o644); err != nil {
		return fmt.Errorf("write tree %s: %w", tree.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish tree %s: %w", tree.ID, err)
	}

	if _, err := s.aggregate.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append tree %s to aggregate: %w", tree.ID, err)
	}
	logger.Infof(ctx, "tree %s written to %s", tree.ID, path)
	return nil
}

// Close flushes the aggregate stream.
func (s *JSONSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aggregate.Close()
}

// queryRecord is the flattened per-node output shape with parent links.
type queryRecord struct {
	types.Query
	ParentID string           `json:"parent_id,omitempty"`
	Branch   types.BranchKind `json:"branch"`
}

// record is the on-disk shape of one tree.
type record struct {
	ID              string                  `json:"id"`
	DocID           string                  `json:"doc_id"`
	TopicID         string                  `json:"topic_id"`
	RootShortAnswer types.ShortAnswer       `json:"root_short_answer"`
	RootQuery       *types.Query            `json:"root_query"`
	Extensions      []queryRecord           `json:"extensions"`
	Composites      compositeRecord         `json:"composites"`
	Trajectory      []types.TrajectoryEntry `json:"trajectory"`
	Statistics      types.TreeStatistics    `json:"statistics"`
}

type compositeRecord struct {
	Nested     string              `json:"nested"`
	Fused      string              `json:"fused"`
	Ambiguated string              `json:"ambiguated"`
	Fallback   types.FallbackFlags `json:"fallback"`
}

// treeRecord flattens the node graph into the output contract: the root
// query plus extension records carrying parent ids.
func treeRecord(tree *types.AgentTree) record {
	rec := record{
		ID:              tree.ID,
		DocID:           tree.DocID,
		TopicID:         tree.TopicID,
		RootShortAnswer: tree.RootShortAnswer,
		RootQuery:       tree.Root.Query,
		Composites: compositeRecord{
			Nested:     tree.Composites.Nested,
			Fused:      tree.Composites.Fused,
			Ambiguated: tree.Composites.Ambiguated,
			Fallback:   tree.FallbackFlags,
		},
		Trajectory: tree.Trajectory,
		Statistics: tree.Statistics,
	}
	for _, node := range tree.Nodes() {
		if node.Parent == nil {
			continue
		}
		rec.Extensions = append(rec.Extensions, queryRecord{
			Query:    *node.Query,
			ParentID: node.Parent.Query.ID,
			Branch:   node.Branch,
		})
	}
	return rec
}
