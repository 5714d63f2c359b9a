package service

import (
	"context"
	"sync"

	"github.com/aiplusall/researchbench/internal/types"
)

type callCounterKey struct{}

// CallCounter accumulates external-call accounting for one tree. It rides
// in the context so that every completion and search call made anywhere in
// the pipeline lands in the owning tree's statistics. Safe for concurrent
// use.
type CallCounter struct {
	mu              sync.Mutex
	completionCalls int
	searchCalls     int
	snippetsUsed    int
	usage           types.TokenUsage
}

// WithCallCounter attaches a counter to the context.
func WithCallCounter(ctx context.Context, counter *CallCounter) context.Context {
	return context.WithValue(ctx, callCounterKey{}, counter)
}

// CounterFromContext returns the attached counter, or nil.
func CounterFromContext(ctx context.Context) *CallCounter {
	counter, _ := ctx.Value(callCounterKey{}).(*CallCounter)
	return counter
}

// AddCompletion records one completion call and its token usage.
func (c *CallCounter) AddCompletion(usage types.TokenUsage) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.completionCalls++
	c.usage.Add(usage)
	c.mu.Unlock()
}

// AddSearch records one search call and the snippets it yielded.
func (c *CallCounter) AddSearch(snippets int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.searchCalls++
	c.snippetsUsed += snippets
	c.mu.Unlock()
}

// CompletionCalls returns the number of completion calls so far.
func (c *CallCounter) CompletionCalls() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completionCalls
}

// Snapshot copies the counters into tree statistics fields.
func (c *CallCounter) Snapshot(stats *types.TreeStatistics) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stats.CompletionCalls = c.completionCalls
	stats.SearchCalls = c.searchCalls
	stats.SearchSnippetsUsed = c.snippetsUsed
	stats.PromptTokens = c.usage.PromptTokens
	stats.CompletionTokens = c.usage.CompletionTokens
	stats.TotalTokens = c.usage.TotalTokens
}
