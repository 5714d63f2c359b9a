package types

// DepthCap is the maximum number of extension layers below the root.
// This bound is structural, not configurable.
const DepthCap = 2

// BranchKind marks how a tree node hangs off its parent
type BranchKind string

const (
	BranchRoot     BranchKind = "ROOT"
	BranchSeries   BranchKind = "SERIES"
	BranchParallel BranchKind = "PARALLEL"
)

// TreeNode is one node of an agent reasoning tree. The parent pointer is
// excluded from serialization; parent links are emitted as ids instead.
type TreeNode struct {
	Query    *Query      `json:"query"`
	Parent   *TreeNode   `json:"-"`
	Children []*TreeNode `json:"children,omitempty"`
	Branch   BranchKind  `json:"branch"`
}

// Ancestors returns the chain of ancestor nodes from parent up to root.
func (n *TreeNode) Ancestors() []*TreeNode {
	var ancestors []*TreeNode
	for p := n.Parent; p != nil; p = p.Parent {
		ancestors = append(ancestors, p)
	}
	return ancestors
}

// Root walks parent links to the root of the tree.
func (n *TreeNode) Root() *TreeNode {
	node := n
	for node.Parent != nil {
		node = node.Parent
	}
	return node
}

// Composites are the three final query forms for one tree
type Composites struct {
	Nested     string `json:"nested"`
	Fused      string `json:"fused"`
	Ambiguated string `json:"ambiguated"`
}

// FallbackFlags records which composites fell back to the nested form
type FallbackFlags struct {
	Fused      bool `json:"fused"`
	Ambiguated bool `json:"ambiguated"`
}

// TreeStatistics aggregates per-tree counters for the output record
type TreeStatistics struct {
	NodeCount          int   `json:"node_count"`
	RejectedCandidates int   `json:"rejected_candidates"`
	CompletionCalls    int   `json:"completion_calls"`
	SearchCalls        int   `json:"search_calls"`
	SearchSnippetsUsed int   `json:"search_snippets_used"`
	PromptTokens       int   `json:"prompt_tokens"`
	CompletionTokens   int   `json:"completion_tokens"`
	TotalTokens        int   `json:"total_tokens"`
	ElapsedMS          int64 `json:"elapsed_ms"`
}

// AgentTree is one complete reasoning tree rooted at an extracted short
// answer, together with its composite query forms and the construction
// trajectory. The tree owns all descendant nodes.
type AgentTree struct {
	ID              string            `json:"id"`
	DocID           string            `json:"doc_id"`
	TopicID         string            `json:"topic_id"`
	RootShortAnswer ShortAnswer       `json:"root_short_answer"`
	Root            *TreeNode         `json:"root"`
	Composites      Composites        `json:"composites"`
	FallbackFlags   FallbackFlags     `json:"fallback_flags"`
	Trajectory      []TrajectoryEntry `json:"trajectory"`
	Statistics      TreeStatistics    `json:"statistics"`
}

// Nodes returns every node of the tree in breadth-first order, root first.
func (t *AgentTree) Nodes() []*TreeNode {
	if t.Root == nil {
		return nil
	}
	nodes := []*TreeNode{t.Root}
	for i := 0; i < len(nodes); i++ {
		nodes = append(nodes, nodes[i].Children...)
	}
	return nodes
}

// Queries returns every query of the tree in breadth-first order.
func (t *AgentTree) Queries() []*Query {
	nodes := t.Nodes()
	queries := make([]*Query, len(nodes))
	for i, n := range nodes {
		queries[i] = n.Query
	}
	return queries
}

// MaxLayer returns the deepest layer present in the tree.
func (t *AgentTree) MaxLayer() int {
	maxLayer := 0
	for _, q := range t.Queries() {
		if q.Layer > maxLayer {
			maxLayer = q.Layer
		}
	}
	return maxLayer
}
