package sink

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWorkbookSinkWritesFourSheets(t *testing.T) {
	dir := t.TempDir()
	s := NewWorkbookSink(dir, "benchmark.xlsx")

	require.NoError(t, s.WriteTree(context.Background(), sampleTree()))
	require.NoError(t, s.Close(context.Background()))

	f, err := excelize.OpenFile(filepath.Join(dir, "benchmark.xlsx"))
	require.NoError(t, err)
	defer f.Close()

	require.ElementsMatch(t, []string{"Trees", "Queries", "Trajectory", "Composites"}, f.GetSheetList())

	treeRows, err := f.GetRows("Trees")
	require.NoError(t, err)
	require.Len(t, treeRows, 2) // header + one tree
	require.Equal(t, "tree_id", treeRows[0][0])
	require.Equal(t, "tree-1", treeRows[1][0])

	queryRows, err := f.GetRows("Queries")
	require.NoError(t, err)
	require.Len(t, queryRows, 3) // header + two nodes

	compositeRows, err := f.GetRows("Composites")
	require.NoError(t, err)
	require.Len(t, compositeRows, 4) // header + three forms
	require.Equal(t, "nested", compositeRows[1][1])
	require.Equal(t, "fused", compositeRows[2][1])
	require.Equal(t, "ambiguated", compositeRows[3][1])

	trajectoryRows, err := f.GetRows("Trajectory")
	require.NoError(t, err)
	require.Len(t, trajectoryRows, 3) // header + two entries
}

func TestMultiSinkFansOut(t *testing.T) {
	dir := t.TempDir()
	jsonSink, err := NewJSONSink(dir)
	require.NoError(t, err)
	workbook := NewWorkbookSink(dir, "out.xlsx")
	multi := NewMultiSinkWith(jsonSink, workbook)

	require.NoError(t, multi.WriteTree(context.Background(), sampleTree()))
	require.NoError(t, multi.Close(context.Background()))

	_, err = excelize.OpenFile(filepath.Join(dir, "out.xlsx"))
	require.NoError(t, err)
}
