package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiplusall/researchbench/internal/types"
)

func TestTrajectoryAppendOnlyAndStamped(t *testing.T) {
	rec := NewTrajectory()
	rec.Record(types.TrajectoryEntry{Step: types.StepExtract})
	rec.Record(types.TrajectoryEntry{Step: types.StepRootBuild})

	entries := rec.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, types.StepExtract, entries[0].Step)
	require.False(t, entries[0].Timestamp.IsZero())

	// the returned slice is a copy; mutating it does not rewrite the log
	entries[0].Step = types.StepSynthesize
	require.Equal(t, types.StepExtract, rec.Entries()[0].Step)
}

func TestTrajectoryConcurrentRecord(t *testing.T) {
	rec := NewTrajectory()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Record(types.TrajectoryEntry{Step: types.StepSeriesExtend})
		}()
	}
	wg.Wait()
	require.Len(t, rec.Entries(), 16)
}
