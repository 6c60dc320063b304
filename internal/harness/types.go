package harness

// TraceEvent records what one step did.
type TraceEvent struct {
	Step    int    `json:"step"`
	Op      string `json:"op"`
	Row     string `json:"row,omitempty"`
	Field   string `json:"field,omitempty"`
	Outcome string `json:"outcome"` // "ok", "noop" or an engine error code
	State   string `json:"state,omitempty"`
}

// RowSnapshot is a final row under its scenario name.
type RowSnapshot struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// CellError is an error left on a cell after the last step.
type CellError struct {
	Row   string `json:"row"`
	Field string `json:"field"`
	Code  string `json:"code"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step met its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent  `json:"trace"`
	Rows   []RowSnapshot `json:"rows"`
	Cells  []CellError   `json:"cells,omitempty"`
	Errors []string      `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Rows:   []RowSnapshot{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// row returns the snapshot of the named row.
func (r *Result) row(name string) (RowSnapshot, bool) {
	for _, s := range r.Rows {
		if s.ID == name {
			return s, true
		}
	}
	return RowSnapshot{}, false
}
