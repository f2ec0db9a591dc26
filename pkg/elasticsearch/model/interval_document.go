package model

// IntervalDocument is the indexed form of one interval of a persisted construction run.
// ID is the document id, carried in the bulk action rather than the source.
type IntervalDocument struct {
	ID         string            `json:"-"`
	RunID      string            `json:"run_id"`
	TraceID    string            `json:"trace_id"`
	Path       string            `json:"path"`
	Name       string            `json:"name"`
	Depth      int               `json:"depth"`
	Start      int64             `json:"start"`
	End        int64             `json:"end,omitempty"`
	Ongoing    bool              `json:"ongoing"`
	Text       string            `json:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}
