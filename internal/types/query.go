package types

// Keyword is one candidate keyword of a question. Essential is true iff
// the masking test proved that removing it breaks unique determination of
// the answer.
type Keyword struct {
	Text       string  `json:"text"`
	Position   int     `json:"position_in_question"`
	Importance float64 `json:"importance"`
	Uniqueness float64 `json:"uniqueness"`
	Essential  bool    `json:"essential"`
}

// GenerationMethod identifies how a query was produced
type GenerationMethod string

const (
	GenerationRoot     GenerationMethod = "ROOT"
	GenerationSeries   GenerationMethod = "SERIES"
	GenerationParallel GenerationMethod = "PARALLEL"
)

// Query is a single generated question with its unique answer and the
// minimized keyword set. Layer 0 is the root; extensions live on layers
// 1 and 2.
type Query struct {
	ID               string           `json:"id"`
	Text             string           `json:"text"`
	Answer           string           `json:"answer"`
	Keywords         []Keyword        `json:"keywords"`
	Layer            int              `json:"layer"`
	GenerationMethod GenerationMethod `json:"generation_method"`
	Confidence       float64          `json:"confidence"`
	Complexity       float64          `json:"complexity"`
}

// EssentialKeywords returns the keywords that survived the masking test,
// in question order.
func (q *Query) EssentialKeywords() []Keyword {
	essential := make([]Keyword, 0, len(q.Keywords))
	for _, k := range q.Keywords {
		if k.Essential {
			essential = append(essential, k)
		}
	}
	return essential
}

// EssentialKeywordTexts returns the essential keyword surface forms.
func (q *Query) EssentialKeywordTexts() []string {
	keywords := q.EssentialKeywords()
	texts := make([]string, len(keywords))
	for i, k := range keywords {
		texts[i] = k.Text
	}
	return texts
}
