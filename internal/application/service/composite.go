package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/aiplusall/researchbench/internal/common"
	"github.com/aiplusall/researchbench/internal/config"
	"github.com/aiplusall/researchbench/internal/logger"
	"github.com/aiplusall/researchbench/internal/tracing"
	"github.com/aiplusall/researchbench/internal/types"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

// CompositeSynthesizerService produces the three final query forms. The
// nested form is pure local compute and deterministic; the fused and
// ambiguated forms are LLM compositions that fall back to the nested form
// whenever the model output leaks an answer or uses forbidden
// meta-language.
type CompositeSynthesizerService struct {
	completion interfaces.CompletionClient
	cfg        config.TreeConfig
}

// NewCompositeSynthesizer creates the synthesizer.
func NewCompositeSynthesizer(cfg *config.Config, completion interfaces.CompletionClient) interfaces.CompositeSynthesizer {
	return &CompositeSynthesizerService{completion: completion, cfg: cfg.Tree}
}

// Synthesize builds the nested, fused and ambiguated composites for a
// complete tree.
func (s *CompositeSynthesizerService) Synthesize(ctx context.Context, tree *types.AgentTree) (types.Composites, types.FallbackFlags, error) {
	ctx, span := tracing.ContextWithSpan(ctx, "CompositeSynthesizer.Synthesize")
	defer span.End()
	span.SetAttributes(attribute.String("tree_id", tree.ID))

	var composites types.Composites
	var flags types.FallbackFlags

	labels := nodeLabels(tree)
	answers := collectAnswers(tree)

	composites.Nested = s.nestedForm(tree, labels)
	if leaked, answer := leaksAnswer(composites.Nested, answers); leaked {
		// the nested form is built from redacted question texts only;
		// a leak here means a question itself carries another layer's
		// answer and the tree must not be emitted
		return composites, flags, fmt.Errorf("nested composite leaks answer %q", answer)
	}

	ordered := questionsDeepestFirst(tree, labels)

	fused, err := s.llmCompose(ctx, BuildFusePrompt(ordered), PromptFuse, answers)
	if err != nil {
		logger.Warnf(ctx, "fused composite fell back to nested form: %v", err)
		composites.Fused = composites.Nested
		flags.Fused = true
	} else {
		composites.Fused = fused
	}

	ambiguated, err := s.llmCompose(ctx, BuildAmbiguatePrompt(ordered), PromptAmbiguate, answers)
	if err != nil {
		logger.Warnf(ctx, "ambiguated composite fell back to nested form: %v", err)
		composites.Ambiguated = composites.Nested
		flags.Ambiguated = true
	} else {
		composites.Ambiguated = ambiguated
	}

	return composites, flags, nil
}

// nodeLabels assigns stable Q-numbers in breadth-first order.
func nodeLabels(tree *types.AgentTree) map[*types.TreeNode]string {
	labels := make(map[*types.TreeNode]string)
	for i, node := range tree.Nodes() {
		labels[node] = fmt.Sprintf("Q%d", i+1)
	}
	return labels
}

// redactedText replaces, in a node's question, each keyword that some
// child answers with a reference to that child's label. Composites must
// carry no answer text at any layer.
func redactedText(node *types.TreeNode, labels map[*types.TreeNode]string) string {
	text := node.Query.Text
	for _, child := range node.Children {
		placeholder := fmt.Sprintf("[the answer of %s]", labels[child])
		text = replaceTokenBounded(text, child.Query.Answer, placeholder)
	}
	return text
}

// replaceTokenBounded substitutes every token-bounded occurrence of
// needle with the replacement, case-insensitively.
func replaceTokenBounded(text, needle, replacement string) string {
	if !common.ContainsToken(text, needle) {
		return text
	}
	return common.ReplaceToken(text, needle, replacement)
}

// nestedForm renders each node with children as one parenthesized group:
// the children's renderings (deeper questions) print before the node's own
// question, so a chain reads ((Q3: ..., Q2: ...), Q1: ...). The root group
// is the outermost and the deepest layer the innermost. Deterministic for
// a frozen node ordering.
func (s *CompositeSynthesizerService) nestedForm(tree *types.AgentTree, labels map[*types.TreeNode]string) string {
	var render func(node *types.TreeNode) string
	render = func(node *types.TreeNode) string {
		self := fmt.Sprintf("%s: %s", labels[node], redactedText(node, labels))
		if len(node.Children) == 0 {
			return self
		}
		parts := make([]string, 0, len(node.Children)+1)
		for _, child := range node.Children {
			parts = append(parts, render(child))
		}
		parts = append(parts, self)
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return render(tree.Root)
}

// questionsDeepestFirst lists labeled redacted questions, deepest layer
// first, for the fusion prompts.
func questionsDeepestFirst(tree *types.AgentTree, labels map[*types.TreeNode]string) []string {
	nodes := tree.Nodes()
	ordered := make([]string, 0, len(nodes))
	for layer := tree.MaxLayer(); layer >= 0; layer-- {
		for _, node := range nodes {
			if node.Query.Layer == layer {
				ordered = append(ordered, fmt.Sprintf("%s: %s", labels[node], redactedText(node, labels)))
			}
		}
	}
	return ordered
}

// collectAnswers gathers every layer's answer, root short answer
// included.
func collectAnswers(tree *types.AgentTree) []string {
	answers := []string{tree.RootShortAnswer.Text}
	for _, q := range tree.Queries() {
		answers = append(answers, q.Answer)
	}
	return common.Deduplicate(common.NormalizeAnswer, answers...)
}

// llmCompose runs one fusion prompt and validates the output; any
// forbidden token or leaked answer is an error the caller turns into a
// nested-form fallback.
func (s *CompositeSynthesizerService) llmCompose(ctx context.Context, prompt string, purpose PromptPurpose, answers []string) (string, error) {
	result, err := s.completion.Complete(ctx, &types.CompletionRequest{
		System: SystemObjective(),
		User:   prompt,
	})
	if err != nil {
		return "", fmt.Errorf("compose (prompt %s): %w", purpose, err)
	}
	composed := common.CleanQuestion(result.Text)
	if composed == "" {
		return "", fmt.Errorf("compose (prompt %s): empty output", purpose)
	}

	lower := strings.ToLower(composed)
	for _, word := range ForbiddenMetaWords() {
		if strings.Contains(lower, word) {
			return "", fmt.Errorf("compose (prompt %s): forbidden token %q", purpose, word)
		}
	}
	if leaked, answer := leaksAnswer(composed, answers); leaked {
		return "", fmt.Errorf("compose (prompt %s): output leaks answer %q", purpose, answer)
	}
	return composed, nil
}

// leaksAnswer reports whether any answer appears, normalized, inside the
// composite text.
func leaksAnswer(composite string, answers []string) (bool, string) {
	normalized := common.NormalizeAnswer(composite)
	for _, answer := range answers {
		needle := common.NormalizeAnswer(answer)
		if needle == "" {
			continue
		}
		if strings.Contains(normalized, needle) {
			return true, answer
		}
	}
	return false, ""
}
