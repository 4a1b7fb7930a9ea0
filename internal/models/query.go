package models

// StructuredAnswer is the JSON contract the model is asked to fill for
// every answer.
type StructuredAnswer struct {
	AnswerText     string   `json:"answer_text"`
	CitedPages     []int    `json:"cited_pages"`
	SuggestedTerms []string `json:"suggested_terms"`
}

// QueryResult is the normalized outcome of one model call. AnswerText
// is never empty: degenerate model output is substituted with a fixed
// message before the result leaves the engine.
type QueryResult struct {
	AnswerText     string
	CitedPages     []int
	SuggestedTerms []string
	Usage          *Usage

	// Structured reports whether the answer came from a successful
	// structured decode or from the raw-text fallback chain.
	Structured bool
}
