package domain

// QueryState tracks the evolving marketplace search string across pipeline
// stages. Refined is empty until the refinement gate produces a genuinely
// new query; UsedLLM records whether the vision collaborator proposed the
// initial query.
type QueryState struct {
	Initial string
	Refined string
	UsedLLM bool
}

// Final returns the query the final marketplace search should use.
func (q QueryState) Final() string {
	if q.Refined != "" {
		return q.Refined
	}
	return q.Initial
}

// GeneratedQuery is the vision/text collaborator's proposal.
type GeneratedQuery struct {
	Query      string  `json:"query"`
	Confidence float64 `json:"confidence"`
}
