package service

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/aiplusall/researchbench/internal/common"
	"github.com/aiplusall/researchbench/internal/config"
	"github.com/aiplusall/researchbench/internal/logger"
	"github.com/aiplusall/researchbench/internal/types"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

// maxDocumentChars bounds how much of a document the extractor scans.
const maxDocumentChars = 200_000

// contextWindowRadius is how many characters around a candidate span are
// kept as its context window.
const contextWindowRadius = 240

var (
	datePattern      = regexp.MustCompile(`\b(?:(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}|\d{1,2}\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4}|\d{4}-\d{2}-\d{2}|(?:1[0-9]|20)\d{2})\b`)
	numberPattern    = regexp.MustCompile(`\b\d+(?:[.,]\d+)*(?:\s*(?:percent|%|million|billion|km|kg|mhz|ghz|nm))?\b`)
	properPattern    = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+(?:of|the|de|van|von|[A-Z][a-z]+))*(?:\s+[A-Z][a-z]+)+\b|\b[A-Z][a-z]{3,}\b`)
	technicalPattern = regexp.MustCompile(`\b[A-Za-z]+[-_/][A-Za-z0-9-_/]+\b|\b[A-Z]{2,}\d+[A-Z0-9]*\b|\b[A-Z]{3,}\b`)
)

// subjectiveMarkers disqualify a sentence from anchoring an objective
// answer.
var subjectiveMarkers = []string{
	"i believe", "i think", "in my opinion", "it is said", "arguably",
	"some say", "many believe", "reportedly", "perhaps", "probably",
	"seems to", "might be", "could be considered", "we feel",
}

// genericAnswerTokens are spans too common to serve as anchors.
var genericAnswerTokens = map[string]struct{}{
	"the": {}, "this": {}, "that": {}, "these": {}, "one": {}, "two": {},
	"may": {}, "march": {}, "it": {}, "he": {}, "she": {}, "they": {},
}

type answerCandidate struct {
	answer   types.ShortAnswer
	sentence string
}

// ShortAnswerExtractorService selects factual anchor answers from a
// document using surface typing and objectivity filtering. Pure local
// compute; no external calls.
type ShortAnswerExtractorService struct {
	topK int
}

// NewShortAnswerExtractor creates the extractor with the configured K.
func NewShortAnswerExtractor(cfg *config.Config) interfaces.ShortAnswerExtractor {
	return &ShortAnswerExtractorService{topK: cfg.Tree.TopKAnswersPerDoc}
}

// Extract returns the top-K anchor candidates by confidence, earliest
// offset first among ties. Fails with types.ErrNoAnchorFound when nothing
// survives the filters.
func (s *ShortAnswerExtractorService) Extract(ctx context.Context, doc *types.Document) ([]types.ShortAnswer, error) {
	content := doc.Content
	if len(content) > maxDocumentChars {
		content = content[:maxDocumentChars]
	}

	candidates := s.enumerate(content)
	candidates = s.filterObjective(candidates)
	if len(candidates) == 0 {
		logger.Infof(ctx, "document %s: no objective anchor candidates", doc.DocID)
		return nil, types.ErrNoAnchorFound
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].answer.Confidence != candidates[j].answer.Confidence {
			return candidates[i].answer.Confidence > candidates[j].answer.Confidence
		}
		return candidates[i].answer.CharOffset < candidates[j].answer.CharOffset
	})

	deduped := common.Deduplicate(func(c answerCandidate) string {
		return common.NormalizeAnswer(c.answer.Text)
	}, candidates...)
	// Deduplicate collects map values in arbitrary order; restore ranking.
	sort.SliceStable(deduped, func(i, j int) bool {
		if deduped[i].answer.Confidence != deduped[j].answer.Confidence {
			return deduped[i].answer.Confidence > deduped[j].answer.Confidence
		}
		return deduped[i].answer.CharOffset < deduped[j].answer.CharOffset
	})

	limit := min(s.topK, len(deduped))
	answers := make([]types.ShortAnswer, 0, limit)
	for _, c := range deduped[:limit] {
		answers = append(answers, c.answer)
	}
	logger.Infof(ctx, "document %s: %d anchor candidates, kept %d", doc.DocID, len(candidates), len(answers))
	return answers, nil
}

// enumerate finds typed candidate spans across the document.
func (s *ShortAnswerExtractorService) enumerate(content string) []answerCandidate {
	var candidates []answerCandidate
	seen := map[int]struct{}{}

	collect := func(kind types.AnswerKind, pattern *regexp.Regexp) {
		for _, loc := range pattern.FindAllStringIndex(content, -1) {
			if _, dup := seen[loc[0]]; dup {
				continue
			}
			text := strings.TrimSpace(content[loc[0]:loc[1]])
			if s.tooGeneric(text) {
				continue
			}
			sentence := surroundingSentence(content, loc[0])
			candidate := answerCandidate{
				answer: types.ShortAnswer{
					Text:          text,
					Kind:          kind,
					CharOffset:    loc[0],
					ContextWindow: contextWindow(content, loc[0], loc[1]),
				},
				sentence: sentence,
			}
			candidate.answer.Confidence = s.score(candidate)
			seen[loc[0]] = struct{}{}
			candidates = append(candidates, candidate)
		}
	}

	// Order matters: more specific surface types claim offsets first.
	collect(types.AnswerKindDate, datePattern)
	collect(types.AnswerKindTechnical, technicalPattern)
	collect(types.AnswerKindName, properPattern)
	collect(types.AnswerKindNumber, numberPattern)
	return candidates
}

// tooGeneric rejects spans with no anchoring power.
func (s *ShortAnswerExtractorService) tooGeneric(text string) bool {
	normalized := common.NormalizeAnswer(text)
	if len(normalized) < 2 {
		return true
	}
	_, generic := genericAnswerTokens[normalized]
	return generic
}

// score mixes specificity, contextual distinctiveness and a length prior
// into a confidence in [0,1].
func (s *ShortAnswerExtractorService) score(c answerCandidate) float64 {
	specificity := 0.0
	switch c.answer.Kind {
	case types.AnswerKindDate:
		specificity = 0.9
	case types.AnswerKindTechnical:
		specificity = 0.8
	case types.AnswerKindName:
		specificity = 0.7
	case types.AnswerKindNumber:
		specificity = 0.5
	}

	// Uncommon surface forms weigh more: digits and capitals raise it.
	var digits, caps int
	for _, r := range c.answer.Text {
		if unicode.IsDigit(r) {
			digits++
		}
		if unicode.IsUpper(r) {
			caps++
		}
	}
	surface := min(0.2, 0.02*float64(digits+caps))

	// Distinctiveness: the surrounding sentence must predicate the span
	// with enough content words to identify it.
	contentWords := 0
	for _, token := range common.Tokenize(c.sentence) {
		if !common.IsStopword(token) && len(token) > 2 {
			contentWords++
		}
	}
	distinctiveness := min(0.25, 0.025*float64(contentWords))

	score := 0.5*specificity + surface + distinctiveness
	return min(1.0, score)
}

// filterObjective drops candidates whose surrounding sentence is
// subjective.
func (s *ShortAnswerExtractorService) filterObjective(candidates []answerCandidate) []answerCandidate {
	kept := make([]answerCandidate, 0, len(candidates))
	for _, c := range candidates {
		sentence := strings.ToLower(c.sentence)
		subjective := false
		for _, marker := range subjectiveMarkers {
			if strings.Contains(sentence, marker) {
				subjective = true
				break
			}
		}
		if !subjective {
			kept = append(kept, c)
		}
	}
	return kept
}

func surroundingSentence(content string, offset int) string {
	start := offset
	for start > 0 && !isSentenceEnd(content[start-1]) {
		start--
	}
	end := offset
	for end < len(content) && !isSentenceEnd(content[end]) {
		end++
	}
	if end < len(content) {
		end++
	}
	return strings.TrimSpace(content[start:end])
}

func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?' || b == '\n'
}

func contextWindow(content string, start, end int) string {
	from := max(0, start-contextWindowRadius)
	to := min(len(content), end+contextWindowRadius)
	return strings.TrimSpace(content[from:to])
}
