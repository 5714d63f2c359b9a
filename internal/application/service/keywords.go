package service

import (
	"regexp"
	"strings"

	"github.com/aiplusall/researchbench/internal/common"
	"github.com/aiplusall/researchbench/internal/types"
)

var (
	properNounPattern = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]*(?:\s+[A-Z][A-Za-z0-9]*)*\b`)
	numeralPattern    = regexp.MustCompile(`\b\d[\d.,/-]*\b`)
	identifierPattern = regexp.MustCompile(`\b[A-Za-z]+\d[A-Za-z0-9-]*\b|\b[a-z]+(?:-[a-z0-9]+)+\b`)
)

// extractCandidateKeywords pulls noun-like, numeral and identifier spans
// out of a question. Every returned keyword appears literally in the
// question text; positions are character offsets for ordering.
func extractCandidateKeywords(questionText string) []types.Keyword {
	type span struct {
		text  string
		start int
	}
	var spans []span

	collect := func(pattern *regexp.Regexp) {
		for _, loc := range pattern.FindAllStringIndex(questionText, -1) {
			text := strings.TrimSpace(questionText[loc[0]:loc[1]])
			if text == "" {
				continue
			}
			spans = append(spans, span{text: text, start: loc[0]})
		}
	}
	collect(properNounPattern)
	collect(numeralPattern)
	collect(identifierPattern)

	// Long content words still anchor questions when nothing capitalized
	// survives (lowercased technical vocabulary).
	for _, loc := range regexp.MustCompile(`\b[a-z]{6,}\b`).FindAllStringIndex(questionText, -1) {
		text := questionText[loc[0]:loc[1]]
		if !common.IsStopword(text) {
			spans = append(spans, span{text: text, start: loc[0]})
		}
	}

	keywords := make([]types.Keyword, 0, len(spans))
	seen := map[string]struct{}{}
	for _, sp := range spans {
		normalized := common.NormalizeAnswer(sp.text)
		if common.IsStopword(normalized) || len(normalized) < 2 {
			continue
		}
		// drop leading interrogatives that matched as capitalized words
		if isInterrogative(normalized) {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		keywords = append(keywords, types.Keyword{
			Text:       sp.text,
			Position:   sp.start,
			Importance: 0.5,
		})
	}
	return keywords
}

var interrogatives = map[string]struct{}{
	"what": {}, "which": {}, "who": {}, "whom": {}, "whose": {},
	"when": {}, "where": {}, "why": {}, "how": {}, "in": {}, "the": {},
	"did": {}, "does": {}, "was": {}, "were": {}, "is": {}, "are": {},
}

func isInterrogative(token string) bool {
	_, ok := interrogatives[token]
	return ok
}
