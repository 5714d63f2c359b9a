package interfaces

import (
	"context"

	"github.com/aiplusall/researchbench/internal/types"
)

// WebSearchProvider defines the interface for web search providers
type WebSearchProvider interface {
	// Name returns the name of the provider
	Name() string
	// Search performs a web search
	Search(ctx context.Context, query string, maxResults int) ([]*types.SearchSnippet, error)
}

// WebSearchService defines the interface for web search services.
// Search returns an empty slice together with the error when every
// provider failed; callers continue without snippets.
type WebSearchService interface {
	Search(ctx context.Context, query string, maxResults int) ([]*types.SearchSnippet, error)
}
