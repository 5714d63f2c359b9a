package interfaces

import (
	"context"

	"github.com/aiplusall/researchbench/internal/types"
)

// ShortAnswerExtractor selects factual anchor answers from a document
type ShortAnswerExtractor interface {
	// Extract returns the top-K candidates by confidence, earliest offset
	// first among ties. Returns types.ErrNoAnchorFound when nothing
	// survives filtering.
	Extract(ctx context.Context, doc *types.Document) ([]types.ShortAnswer, error)
}

// KeywordMinimizer runs the masking-test loop over candidate keywords
type KeywordMinimizer interface {
	// Minimize returns the essential keyword set for the question, in
	// question order. Returns types.ErrRootNotMinimal when fewer than the
	// configured minimum survive.
	Minimize(ctx context.Context, questionText, answer string, candidates []types.Keyword) ([]types.Keyword, []types.KeywordScore, error)
}

// RootQueryBuilder builds the minimal-keyword root question for a short
// answer
type RootQueryBuilder interface {
	BuildRoot(ctx context.Context, shortAnswer types.ShortAnswer, docContext string, rec TrajectoryRecorder) (*types.Query, error)
}

// ExtendRequest carries everything an extender needs for one child
// candidate: the parent node, the keyword being replaced, the root short
// answer the child must not expose, and the per-tree recorder.
type ExtendRequest struct {
	Parent          *types.TreeNode
	Keyword         types.Keyword
	RootShortAnswer types.ShortAnswer
	Recorder        TrajectoryRecorder
}

// QueryExtender produces a child query whose answer is the requested
// keyword's text. A rejection outcome means the keyword is skipped; an
// error aborts the candidate tree.
type QueryExtender interface {
	Extend(ctx context.Context, req *ExtendRequest) (types.Outcome, error)
}

// CorrelationGuard enforces non-correlation and no-root-answer-exposure
type CorrelationGuard interface {
	// Check validates a candidate against its ancestor queries and the
	// root short answer. extendedKeyword is the keyword the candidate was
	// grown from and is exempt from the overlap gate.
	Check(ctx context.Context, candidate *types.Query, ancestors []*types.Query, extendedKeyword string, root types.ShortAnswer) ([]types.GateResult, error)
}

// CircularGuard detects the four cycle patterns across a tree
type CircularGuard interface {
	// CheckCandidate validates one insertion against the existing tree
	CheckCandidate(ctx context.Context, candidate *types.Query, parent *types.TreeNode) ([]types.GateResult, error)
	// Sweep re-validates the complete tree before composite synthesis
	Sweep(ctx context.Context, tree *types.AgentTree) ([]types.GateResult, error)
}

// CompositeSynthesizer produces the nested, fused and ambiguated forms
type CompositeSynthesizer interface {
	Synthesize(ctx context.Context, tree *types.AgentTree) (types.Composites, types.FallbackFlags, error)
}

// TrajectoryRecorder is the per-tree append-only audit log
type TrajectoryRecorder interface {
	Record(entry types.TrajectoryEntry)
	Entries() []types.TrajectoryEntry
}

// RunSummary aggregates one orchestrator run
type RunSummary struct {
	DocumentsProcessed int
	TreesEmitted       int
	CandidatesFailed   int
	Usage              types.TokenUsage
}

// TreeOrchestrator drives the six-step flow over a document stream
type TreeOrchestrator interface {
	Run(ctx context.Context, docs DocumentProvider) (*RunSummary, error)
}
