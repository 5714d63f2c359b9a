package interfaces

import (
	"context"

	"github.com/aiplusall/researchbench/internal/types"
)

// ResultSink receives completed trees. WriteTree must be safe for
// concurrent use; each tree is emitted atomically. Close flushes any
// buffered artefacts (the workbook is written here).
type ResultSink interface {
	WriteTree(ctx context.Context, tree *types.AgentTree) error
	Close(ctx context.Context) error
}
