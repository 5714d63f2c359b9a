package interfaces

import (
	"context"

	"github.com/aiplusall/researchbench/internal/types"
)

// DocumentProvider streams input documents. Next returns io.EOF when the
// stream is exhausted.
type DocumentProvider interface {
	Next(ctx context.Context) (*types.Document, error)
	Close() error
}
