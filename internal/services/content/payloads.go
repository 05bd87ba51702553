package content

// Unmarshal targets for each stage's AIClient.GenerateJSON call. Kept
// unexported: nothing outside the pipeline reads these shapes directly, the
// persisted Article/Revision rows are the durable record.

type keywordOpportunity struct {
	Keyword    string  `json:"keyword"`
	Volume     float64 `json:"volume"`
	Difficulty float64 `json:"difficulty"`
}

type keywordResearchResult struct {
	Keywords []keywordOpportunity `json:"keywords"`
}

type researchResult struct {
	Statistics   []string `json:"statistics,omitempty"`
	Quotes       []string `json:"quotes,omitempty"`
	Hooks        []string `json:"hooks,omitempty"`
	Developments []string `json:"developments,omitempty"`
}

type outlineResult struct {
	Title           string          `json:"title"`
	MetaDescription string          `json:"metaDescription,omitempty"`
	Outline         []string        `json:"outline"`
	FAQs            []outlineFAQ    `json:"faqs,omitempty"`
	Calculator      *calculatorBlob `json:"calculator,omitempty"`
	Comparison      *comparisonBlob `json:"comparison,omitempty"`
}

type outlineFAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type calculatorBlob struct {
	Kind    string          `json:"kind" validate:"required"`
	Inputs  []calcInputBlob `json:"inputs" validate:"required,min=1,dive"`
	Formula string          `json:"formula" validate:"required"`
}

type calcInputBlob struct {
	Name  string `json:"name" validate:"required"`
	Label string `json:"label" validate:"required"`
	Unit  string `json:"unit,omitempty"`
}

type comparisonBlob struct {
	ItemA string            `json:"itemA" validate:"required"`
	ItemB string            `json:"itemB" validate:"required"`
	Axes  []string          `json:"axes" validate:"required,min=1"`
	Notes map[string]string `json:"notes,omitempty"`
}

type draftResult struct {
	Markdown string `json:"markdown"`
}

type humanizeResult struct {
	Markdown string `json:"markdown"`
}

type seoResult struct {
	Markdown string `json:"markdown"`
}

type metaResult struct {
	Title           string         `json:"title"`
	MetaDescription string         `json:"metaDescription"`
	Slug            string         `json:"slug,omitempty"`
	OpenGraph       map[string]any `json:"openGraph,omitempty"`
	Schema          map[string]any `json:"schema,omitempty"`
	YMYLLevel       string         `json:"ymylLevel,omitempty"`
}

type reviewResult struct {
	Approved     bool     `json:"approved"`
	HumanReview  bool     `json:"humanReviewRequired"`
	FailureNotes []string `json:"failureNotes,omitempty"`
}
