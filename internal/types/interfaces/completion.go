package interfaces

import (
	"context"

	"github.com/aiplusall/researchbench/internal/types"
)

// CompletionClient is the LLM transport capability. Implementations own
// retry, backoff and deadline handling; a returned error means the call
// is unrecoverable for the caller.
type CompletionClient interface {
	// Complete performs one non-streaming completion
	Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResult, error)
	// ModelName returns the backing model identifier
	ModelName() string
}
