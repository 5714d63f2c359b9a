package sink

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/aiplusall/researchbench/internal/logger"
	"github.com/aiplusall/researchbench/internal/types"
)

const (
	sheetTrees      = "Trees"
	sheetQueries    = "Queries"
	sheetTrajectory = "Trajectory"
	sheetComposites = "Composites"
)

// WorkbookSink accumulates tabular rows per tree and writes the
// four-sheet workbook once, on Close. Row appends are serialized.
type WorkbookSink struct {
	mu   sync.Mutex
	path string

	treeRows       [][]interface{}
	queryRows      [][]interface{}
	trajectoryRows [][]interface{}
	compositeRows  [][]interface{}
}

// NewWorkbookSink creates the workbook sink.
func NewWorkbookSink(outputDir, workbook string) *WorkbookSink {
	return &WorkbookSink{path: filepath.Join(outputDir, workbook)}
}

// WriteTree appends the tree's rows to every sheet.
func (s *WorkbookSink) WriteTree(ctx context.Context, tree *types.AgentTree) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := tree.Statistics
	s.treeRows = append(s.treeRows, []interface{}{
		tree.ID, tree.DocID, tree.TopicID,
		tree.RootShortAnswer.Text, string(tree.RootShortAnswer.Kind),
		stats.NodeCount, stats.RejectedCandidates,
		stats.CompletionCalls, stats.SearchCalls, stats.SearchSnippetsUsed,
		stats.PromptTokens, stats.CompletionTokens, stats.TotalTokens,
		stats.ElapsedMS,
	})

	for _, node := range tree.Nodes() {
		parentID := ""
		if node.Parent != nil {
			parentID = node.Parent.Query.ID
		}
		verdict := "accepted"
		s.queryRows = append(s.queryRows, []interface{}{
			tree.ID, node.Query.ID, node.Query.Layer, string(node.Branch), parentID,
			node.Query.Text, node.Query.Answer,
			strings.Join(node.Query.EssentialKeywordTexts(), "; "),
			verdict,
		})
	}

	for i, entry := range tree.Trajectory {
		verdicts := make([]string, 0, len(entry.Validation))
		for _, v := range entry.Validation {
			state := "pass"
			if !v.Passed {
				state = "fail"
			}
			verdicts = append(verdicts, fmt.Sprintf("%s=%s", v.Gate, state))
		}
		s.trajectoryRows = append(s.trajectoryRows, []interface{}{
			tree.ID, i, string(entry.Step), entry.Layer, string(entry.GenerationMethod),
			entry.CurrentQuestion, entry.CurrentAnswer,
			strings.Join(verdicts, "; "), string(entry.Reject), entry.Error,
			entry.APICallCount, entry.ElapsedMS, entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}

	s.compositeRows = append(s.compositeRows,
		[]interface{}{tree.ID, "nested", tree.Composites.Nested, false},
		[]interface{}{tree.ID, "fused", tree.Composites.Fused, tree.FallbackFlags.Fused},
		[]interface{}{tree.ID, "ambiguated", tree.Composites.Ambiguated, tree.FallbackFlags.Ambiguated},
	)
	return nil
}

// Close writes the workbook to disk.
func (s *WorkbookSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := excelize.NewFile()
	defer f.Close()

	sheets := []struct {
		name   string
		header []interface{}
		rows   [][]interface{}
	}{
		{sheetTrees, []interface{}{
			"tree_id", "doc_id", "topic_id", "root_answer", "answer_kind",
			"node_count", "rejected_candidates", "completion_calls",
			"search_calls", "search_snippets_used", "prompt_tokens",
			"completion_tokens", "total_tokens", "elapsed_ms",
		}, s.treeRows},
		{sheetQueries, []interface{}{
			"tree_id", "query_id", "layer", "branch", "parent_id",
			"question", "answer", "keywords", "verdict",
		}, s.queryRows},
		{sheetTrajectory, []interface{}{
			"tree_id", "seq", "step", "layer", "generation_method",
			"question", "answer", "validation", "reject_reason", "error",
			"api_calls", "elapsed_ms", "timestamp",
		}, s.trajectoryRows},
		{sheetComposites, []interface{}{
			"tree_id", "form", "text", "fallback",
		}, s.compositeRows},
	}

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet.name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(sheet.name); err != nil {
				return fmt.Errorf("create sheet %s: %w", sheet.name, err)
			}
		}
		if err := writeRows(f, sheet.name, sheet.header, sheet.rows); err != nil {
			return err
		}
	}

	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", s.path, err)
	}
	logger.Infof(ctx, "workbook written to %s (%d trees)", s.path, len(s.treeRows))
	return nil
}

func writeRows(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
