package service

import (
	"fmt"
	"strings"

	"github.com/aiplusall/researchbench/internal/types"
)

// Prompt text is part of the component contract: every prompt used by the
// pipeline lives here as a named, versioned template so the invariant
// probes stay meaningful across model versions. Selection is by purpose
// and regeneration attempt; attempt ≥ 1 picks the stricter variant. The
// layer of the question does not select a template.

// PromptPurpose names one prompt template family
type PromptPurpose string

const (
	PromptRootGenerate      PromptPurpose = "root_generate/v1"
	PromptExtendGenerate    PromptPurpose = "extend_generate/v1"
	PromptUniquenessProbe   PromptPurpose = "uniqueness_probe/v1"
	PromptMaskProbe         PromptPurpose = "mask_probe/v1"
	PromptDomainClassify    PromptPurpose = "domain_classify/v1"
	PromptExposureProbe     PromptPurpose = "exposure_probe/v1"
	PromptShortPathProbe    PromptPurpose = "short_path_probe/v1"
	PromptLogicalDependency PromptPurpose = "logical_dependency/v1"
	PromptFuse              PromptPurpose = "fuse/v1"
	PromptAmbiguate         PromptPurpose = "ambiguate/v1"
)

const promptSystemObjective = `You are a benchmark question writer. You write strictly objective, fact-seeking questions with a single verifiable answer. Never include opinions, hedges, or the answer itself in a question. Respond with only what is asked, no commentary.`

const promptSystemProbe = `You are a strict evaluator. Answer exactly in the format requested, with no explanation beyond what the format allows.`

// forbiddenMetaWords are banned from fused and ambiguated composites.
var forbiddenMetaWords = []string{
	"analyze", "determine", "consider", "evaluate", "examine", "assess",
	"step by step", "first solve", "reasoning chain",
}

// ForbiddenMetaWords returns the meta-language tokens banned from
// composite output.
func ForbiddenMetaWords() []string {
	return forbiddenMetaWords
}

// SystemObjective returns the system prompt for question generation.
func SystemObjective() string { return promptSystemObjective }

// SystemProbe returns the system prompt for verification probes.
func SystemProbe() string { return promptSystemProbe }

// BuildRootGeneratePrompt asks for an initial root question over the
// anchor answer. Later attempts demand stronger specificity.
func BuildRootGeneratePrompt(shortAnswer types.ShortAnswer, docContext string, snippets []*types.SearchSnippet, attempt int) string {
	var b strings.Builder
	b.WriteString("Write one factual question in English whose unique, exact answer is:\n")
	fmt.Fprintf(&b, "ANSWER: %s\n", shortAnswer.Text)
	fmt.Fprintf(&b, "ANSWER TYPE: %s\n\n", shortAnswer.Kind)
	b.WriteString("Document context:\n")
	b.WriteString(docContext)
	b.WriteString("\n")
	writeSnippetBlock(&b, snippets)
	b.WriteString("\nRequirements:\n")
	b.WriteString("- The question must end with '?'.\n")
	b.WriteString("- The question must contain at least 2 distinct specific keywords (proper nouns, numbers, dates or technical terms).\n")
	b.WriteString("- The question must be fully objective and answerable without the document.\n")
	b.WriteString("- The answer text itself must not appear in the question.\n")
	if attempt > 0 {
		fmt.Fprintf(&b, "- Previous attempt %d produced a question whose keywords were not all necessary. Use more specific, independently identifying keywords so that each one is essential to pin down the answer.\n", attempt)
	}
	b.WriteString("\nReturn only the question text.")
	return b.String()
}

// BuildExtendGeneratePrompt asks for an extension question whose answer is
// the parent keyword. Later attempts demand more topical distance.
func BuildExtendGeneratePrompt(keyword string, parentQuestion string, snippets []*types.SearchSnippet, attempt int) string {
	var b strings.Builder
	b.WriteString("Write one factual question in English whose unique, exact answer is:\n")
	fmt.Fprintf(&b, "ANSWER: %s\n\n", keyword)
	writeSnippetBlock(&b, snippets)
	b.WriteString("\nRequirements:\n")
	b.WriteString("- The question must end with '?'.\n")
	b.WriteString("- The question must contain at least 2 distinct specific keywords.\n")
	b.WriteString("- The question must be about a DIFFERENT topic than this existing question, sharing no subject matter with it beyond the answer itself:\n")
	fmt.Fprintf(&b, "  EXISTING QUESTION: %s\n", parentQuestion)
	b.WriteString("- Do not reuse any distinctive word from the existing question.\n")
	switch {
	case attempt == 1:
		b.WriteString("- The previous attempt was too close to the existing question. Pick a more distant knowledge domain (different field, era or discipline).\n")
	case attempt >= 2:
		b.WriteString("- Earlier attempts were rejected for topical overlap. Choose the most abstract, remote framing you can: a different discipline entirely, connected to the answer only through an obscure fact.\n")
	}
	b.WriteString("\nReturn only the question text.")
	return b.String()
}

// BuildUniquenessProbePrompt asks whether a question uniquely determines
// an answer. The reply format is one line: YES <answer> or NO.
func BuildUniquenessProbePrompt(questionText string) string {
	var b strings.Builder
	b.WriteString("Answer the following question with a single short factual answer if, and only if, the question has exactly one correct answer.\n\n")
	fmt.Fprintf(&b, "QUESTION: %s\n\n", questionText)
	b.WriteString("Reply with exactly one line:\n")
	b.WriteString("YES <the answer>   - if one unique answer exists\n")
	b.WriteString("NO                 - if the question is ambiguous or underdetermined")
	return b.String()
}

// BuildMaskProbePrompt asks whether a masked question still uniquely
// determines the answer.
func BuildMaskProbePrompt(maskedText, answer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A keyword in the question below was replaced with %s.\n\n", "[MASKED]")
	fmt.Fprintf(&b, "QUESTION: %s\n\n", maskedText)
	fmt.Fprintf(&b, "Can the masked question still be answered uniquely and unambiguously with \"%s\", with no other plausible answer? Consider whether the remaining constraints alone single out this answer.\n\n", answer)
	b.WriteString("Reply with exactly one word: YES or NO.")
	return b.String()
}

// BuildDomainClassifyPrompt asks whether two questions fall in the same
// narrow knowledge domain.
func BuildDomainClassifyPrompt(questionA, questionB string) string {
	var b strings.Builder
	b.WriteString("Do these two questions belong to the same narrow knowledge domain (for example, the same historical episode, the same scientific subfield, or the same organization)?\n\n")
	fmt.Fprintf(&b, "QUESTION A: %s\n", questionA)
	fmt.Fprintf(&b, "QUESTION B: %s\n\n", questionB)
	b.WriteString("Reply with exactly one word: SAME or DIFFERENT.")
	return b.String()
}

// BuildExposureProbePrompt asks how strongly a question hints at a
// protected answer. Reply is one of HIGH, MEDIUM, LOW, SAFE.
func BuildExposureProbePrompt(questionText, protectedAnswer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Does reading this question make the answer \"%s\" immediately obvious to a well-read person?\n\n", protectedAnswer)
	fmt.Fprintf(&b, "QUESTION: %s\n\n", questionText)
	b.WriteString("Grade the risk that the question exposes that answer:\n")
	b.WriteString("HIGH   - the answer is directly implied\n")
	b.WriteString("MEDIUM - the answer is a likely first guess\n")
	b.WriteString("LOW    - the answer could only be reached with extra research\n")
	b.WriteString("SAFE   - the question gives no usable hint\n\n")
	b.WriteString("Reply with exactly one word: HIGH, MEDIUM, LOW or SAFE.")
	return b.String()
}

// BuildShortPathProbePrompt asks the model to answer the question cold;
// used to detect one-step shortcuts to the root answer.
func BuildShortPathProbePrompt(questionText string) string {
	var b strings.Builder
	b.WriteString("Answer this question in one short phrase, using only your own knowledge. If you cannot answer confidently, reply UNKNOWN.\n\n")
	fmt.Fprintf(&b, "QUESTION: %s", questionText)
	return b.String()
}

// BuildLogicalDependencyPrompt asks whether knowing one answer trivially
// yields the other (temporal or causal entailment included).
func BuildLogicalDependencyPrompt(answerA, questionA, answerB, questionB string) string {
	var b strings.Builder
	b.WriteString("Two question/answer pairs:\n")
	fmt.Fprintf(&b, "PAIR 1: Q: %s A: %s\n", questionA, answerA)
	fmt.Fprintf(&b, "PAIR 2: Q: %s A: %s\n\n", questionB, answerB)
	b.WriteString("Does knowing either answer trivially give away the other (direct implication, temporal entailment, or causal entailment)?\n\n")
	b.WriteString("Reply with exactly one word: DEPENDENT or INDEPENDENT.")
	return b.String()
}

// BuildFusePrompt asks for a single natural paragraph chaining the
// questions into a sequential dependency, deepest first.
func BuildFusePrompt(questions []string) string {
	var b strings.Builder
	b.WriteString("Combine the following questions into ONE natural-language paragraph that reads as a single multi-part research task. Solving question 1 reveals the input needed by question 2, and so on; the final part is the last question.\n\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "QUESTION %d: %s\n", i+1, q)
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Keep every factual constraint of every question.\n")
	b.WriteString("- Never state or hint at the answer to any question.\n")
	fmt.Fprintf(&b, "- Never use meta words such as: %s.\n", strings.Join(forbiddenMetaWords, ", "))
	b.WriteString("- Return only the paragraph.")
	return b.String()
}

// BuildAmbiguatePrompt is the fused form with concrete nouns abstracted.
func BuildAmbiguatePrompt(questions []string) string {
	var b strings.Builder
	b.WriteString("Combine the following questions into ONE natural-language paragraph forming a single multi-part research task, where solving each part reveals the input needed by the next.\n\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "QUESTION %d: %s\n", i+1, q)
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Replace the concrete subject nouns that link the parts with abstract placeholders such as \"a certain entity\", \"a specific factor\", \"the figure in question\", keeping the logical skeleton intact.\n")
	b.WriteString("- Keep every factual constraint needed to make each part solvable.\n")
	b.WriteString("- Never state or hint at the answer to any question.\n")
	fmt.Fprintf(&b, "- Never use meta words such as: %s.\n", strings.Join(forbiddenMetaWords, ", "))
	b.WriteString("- Return only the paragraph.")
	return b.String()
}

func writeSnippetBlock(b *strings.Builder, snippets []*types.SearchSnippet) {
	if len(snippets) == 0 {
		return
	}
	b.WriteString("\nBackground search results:\n")
	for i, s := range snippets {
		fmt.Fprintf(b, "[%d] %s — %s\n", i+1, s.Title, s.Text)
	}
}
