package service

import (
	"context"
	"fmt"

	"github.com/aiplusall/researchbench/internal/common"
	"github.com/aiplusall/researchbench/internal/config"
	"github.com/aiplusall/researchbench/internal/types"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

// duplicateDistanceThreshold is the normalized edit distance under which
// two question texts count as near-duplicates.
const duplicateDistanceThreshold = 0.1

// CircularGuardService detects the four cycle patterns: direct
// repetition, reverse cycles, semantic cycles and keyword cycles. All
// detection is local compute; no completion calls.
type CircularGuardService struct {
	similarityThreshold float64
}

// NewCircularGuard creates the guard.
func NewCircularGuard(cfg *config.Config) interfaces.CircularGuard {
	return &CircularGuardService{similarityThreshold: cfg.Tree.SimilarityRejectAbove}
}

// CheckCandidate validates one insertion against every node already in
// the tree the parent belongs to.
func (s *CircularGuardService) CheckCandidate(ctx context.Context, candidate *types.Query, parent *types.TreeNode) ([]types.GateResult, error) {
	var results []types.GateResult

	root := parent.Root()
	existing := []*types.TreeNode{root}
	for i := 0; i < len(existing); i++ {
		existing = append(existing, existing[i].Children...)
	}

	// direct repetition against any existing node
	for _, node := range existing {
		distance := common.NormalizedEditDistance(candidate.Text, node.Query.Text)
		if distance < duplicateDistanceThreshold {
			results = append(results, types.GateResult{
				Gate:   types.GateDirectRepetition,
				Score:  distance,
				Detail: fmt.Sprintf("near-duplicate of layer-%d question", node.Query.Layer),
			})
			return results, nil
		}
	}
	results = append(results, types.GateResult{Gate: types.GateDirectRepetition, Passed: true})

	// reverse cycle against the direct parent: the parent's answer as the
	// candidate's subject with the extended keyword as the predicate
	if s.isReverseOf(candidate, parent.Query) {
		results = append(results, types.GateResult{
			Gate:   types.GateReverseCycle,
			Detail: "candidate asks the parent question in reverse",
		})
		return results, nil
	}
	results = append(results, types.GateResult{Gate: types.GateReverseCycle, Passed: true})

	// keyword cycle along the ancestor path
	candidateKeywords := map[string]struct{}{}
	for _, k := range candidate.EssentialKeywords() {
		candidateKeywords[common.NormalizeAnswer(k.Text)] = struct{}{}
	}
	for _, ancestor := range append([]*types.TreeNode{parent}, parent.Ancestors()...) {
		for _, ak := range ancestor.Query.EssentialKeywords() {
			akNorm := common.NormalizeAnswer(ak.Text)
			// the keyword the candidate answers is expected on the parent
			if akNorm == common.NormalizeAnswer(candidate.Answer) {
				continue
			}
			if _, hit := candidateKeywords[akNorm]; hit {
				results = append(results, types.GateResult{
					Gate:   types.GateKeywordCycle,
					Detail: fmt.Sprintf("essential keyword %q already used on the path at layer %d", ak.Text, ancestor.Query.Layer),
				})
				return results, nil
			}
		}
	}
	results = append(results, types.GateResult{Gate: types.GateKeywordCycle, Passed: true})

	// semantic cycle: inserting the candidate must not close a loop of
	// pairwise-similar nodes
	if s.closesSemanticLoop(candidate, existing) {
		results = append(results, types.GateResult{
			Gate:   types.GateSemanticCycle,
			Detail: "candidate closes a chain of mutually similar questions",
		})
		return results, nil
	}
	results = append(results, types.GateResult{Gate: types.GateSemanticCycle, Passed: true})

	return results, nil
}

// Sweep re-validates the complete tree before composite synthesis:
// defense in depth over per-insertion checks.
func (s *CircularGuardService) Sweep(ctx context.Context, tree *types.AgentTree) ([]types.GateResult, error) {
	var results []types.GateResult
	nodes := tree.Nodes()

	for i, a := range nodes {
		for _, b := range nodes[i+1:] {
			if distance := common.NormalizedEditDistance(a.Query.Text, b.Query.Text); distance < duplicateDistanceThreshold {
				results = append(results, types.GateResult{
					Gate:   types.GateDirectRepetition,
					Score:  distance,
					Detail: fmt.Sprintf("layers %d and %d near-duplicate", a.Query.Layer, b.Query.Layer),
				})
			}
		}
	}

	for _, node := range nodes {
		if node.Parent == nil {
			continue
		}
		if s.isReverseOf(node.Query, node.Parent.Query) {
			results = append(results, types.GateResult{
				Gate:   types.GateReverseCycle,
				Detail: fmt.Sprintf("layer-%d node reverses its parent", node.Query.Layer),
			})
		}
		seen := map[string]int{}
		for _, ancestor := range node.Ancestors() {
			for _, k := range ancestor.Query.EssentialKeywords() {
				seen[common.NormalizeAnswer(k.Text)] = ancestor.Query.Layer
			}
		}
		for _, k := range node.Query.EssentialKeywords() {
			kNorm := common.NormalizeAnswer(k.Text)
			if kNorm == common.NormalizeAnswer(node.Query.Answer) {
				continue
			}
			if layer, hit := seen[kNorm]; hit {
				results = append(results, types.GateResult{
					Gate:   types.GateKeywordCycle,
					Detail: fmt.Sprintf("keyword %q repeats between layers %d and %d", k.Text, layer, node.Query.Layer),
				})
			}
		}
	}

	if loop := s.findSemanticLoop(nodes); loop != "" {
		results = append(results, types.GateResult{
			Gate:   types.GateSemanticCycle,
			Detail: loop,
		})
	}

	if len(results) == 0 {
		results = append(results, types.GateResult{Gate: types.GateDirectRepetition, Passed: true},
			types.GateResult{Gate: types.GateReverseCycle, Passed: true},
			types.GateResult{Gate: types.GateKeywordCycle, Passed: true},
			types.GateResult{Gate: types.GateSemanticCycle, Passed: true})
	}
	return results, nil
}

// isReverseOf reports whether candidate asks parent's question backwards:
// the parent's answer appears inside the candidate's text while the
// candidate's answer is one of the parent's keywords.
func (s *CircularGuardService) isReverseOf(candidate, parent *types.Query) bool {
	if !common.ContainsToken(candidate.Text, parent.Answer) {
		return false
	}
	for _, k := range parent.EssentialKeywords() {
		if common.NormalizeAnswer(k.Text) == common.NormalizeAnswer(candidate.Answer) {
			return true
		}
	}
	return false
}

// closesSemanticLoop checks whether the candidate plus existing nodes
// contain a closed chain of three or more pairwise-similar questions
// through the candidate.
func (s *CircularGuardService) closesSemanticLoop(candidate *types.Query, existing []*types.TreeNode) bool {
	similar := make([]*types.TreeNode, 0, len(existing))
	for _, node := range existing {
		if common.CosineSimilarity(candidate.Text, node.Query.Text) > s.similarityThreshold {
			similar = append(similar, node)
		}
	}
	if len(similar) < 2 {
		return false
	}
	// two nodes similar to the candidate and to each other close a loop
	for i, a := range similar {
		for _, b := range similar[i+1:] {
			if common.CosineSimilarity(a.Query.Text, b.Query.Text) > s.similarityThreshold {
				return true
			}
		}
	}
	return false
}

// findSemanticLoop scans the whole tree for a closed similar chain.
func (s *CircularGuardService) findSemanticLoop(nodes []*types.TreeNode) string {
	for i, a := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			if common.CosineSimilarity(a.Query.Text, nodes[j].Query.Text) <= s.similarityThreshold {
				continue
			}
			for k := j + 1; k < len(nodes); k++ {
				if common.CosineSimilarity(a.Query.Text, nodes[k].Query.Text) > s.similarityThreshold &&
					common.CosineSimilarity(nodes[j].Query.Text, nodes[k].Query.Text) > s.similarityThreshold {
					return fmt.Sprintf("layers %d, %d and %d form a similar closed chain",
						a.Query.Layer, nodes[j].Query.Layer, nodes[k].Query.Layer)
				}
			}
		}
	}
	return ""
}
