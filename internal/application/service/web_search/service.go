package web_search

import (
	"context"
	"fmt"
	"strings"

	"github.com/aiplusall/researchbench/internal/config"
	"github.com/aiplusall/researchbench/internal/logger"
	"github.com/aiplusall/researchbench/internal/types"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

// Service tries the configured providers in order and returns the first
// non-empty result set. When every provider fails it returns an empty
// slice and types.ErrExternalUnavailable; it never synthesizes snippets.
type Service struct {
	providers []interfaces.WebSearchProvider
	cfg       config.WebSearchConfig
}

// NewService builds the provider chain from configuration. Providers that
// cannot initialize (for example a missing API key) are skipped with a
// warning; an empty chain is allowed and behaves as a permanent outage.
func NewService(cfg *config.Config) *Service {
	providerConfigs := cfg.WebSearch.Providers
	if len(providerConfigs) == 0 {
		providerConfigs = []config.WebSearchProviderConfig{{Name: "duckduckgo"}}
	}

	providers := make([]interfaces.WebSearchProvider, 0, len(providerConfigs))
	for _, pc := range providerConfigs {
		provider, err := newProvider(pc)
		if err != nil {
			logger.Warnf(context.Background(), "web search provider %q disabled: %v", pc.Name, err)
			continue
		}
		providers = append(providers, provider)
	}
	return &Service{providers: providers, cfg: cfg.WebSearch}
}

// NewServiceWithProviders wires an explicit provider chain; used by tests.
func NewServiceWithProviders(cfg config.WebSearchConfig, providers ...interfaces.WebSearchProvider) *Service {
	return &Service{providers: providers, cfg: cfg}
}

func newProvider(pc config.WebSearchProviderConfig) (interfaces.WebSearchProvider, error) {
	switch strings.ToLower(pc.Name) {
	case "duckduckgo":
		return NewDuckDuckGoProvider(pc)
	case "perplexity":
		return NewPerplexityProvider(pc)
	default:
		return nil, fmt.Errorf("unknown web search provider: %s", pc.Name)
	}
}

// Search queries the provider chain. Failures degrade to the next
// provider; the returned slice is empty when everything failed.
func (s *Service) Search(ctx context.Context, query string, maxResults int) ([]*types.SearchSnippet, error) {
	if maxResults <= 0 {
		maxResults = s.cfg.MaxSnippets
	}
	for _, provider := range s.providers {
		snippets, err := provider.Search(ctx, query, maxResults)
		if err != nil {
			logger.Warnf(ctx, "web search provider %s failed for %q: %v", provider.Name(), query, err)
			continue
		}
		if len(snippets) > 0 {
			return snippets, nil
		}
	}
	return nil, fmt.Errorf("%w: all web search providers failed for %q", types.ErrExternalUnavailable, query)
}
