package model

import "strings"

// Record is the normalized view of one span lifecycle event. Timestamps are unix nanoseconds.
type Record struct {
	TraceID            string            `json:"trace_id"`
	SpanID             string            `json:"span_id"`
	ParentSpanID       string            `json:"parent_span_id,omitempty"` // empty for a hierarchy root
	Name               string            `json:"name"`
	StartTime          int64             `json:"start_time"`
	EndTime            int64             `json:"end_time"`
	Error              bool              `json:"error"`
	ServiceName        string            `json:"service_name"`
	ProcessName        string            `json:"process_name"`
	Logs               []LogEntry        `json:"logs,omitempty"`
	ResourceAttributes map[string]string `json:"resource_attributes,omitempty"`
}

type LogEntry struct {
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

// SpanKey identifies a span across a stream that may interleave several traces.
type SpanKey struct {
	TraceID string
	SpanID  string
}

func (r Record) Key() SpanKey {
	return SpanKey{TraceID: CanonicalID(r.TraceID), SpanID: CanonicalID(r.SpanID)}
}

// ParentKey returns the key of the parent span and false when the record is a root.
func (r Record) ParentKey() (SpanKey, bool) {
	if r.ParentSpanID == "" {
		return SpanKey{}, false
	}
	return SpanKey{TraceID: CanonicalID(r.TraceID), SpanID: CanonicalID(r.ParentSpanID)}, true
}

func (r Record) IsRoot() bool {
	return r.ParentSpanID == ""
}

func (k SpanKey) String() string {
	return k.TraceID + "/" + k.SpanID
}

// CanonicalID returns the lowercase hex form used for comparisons and path segments.
func CanonicalID(id string) string {
	return strings.ToLower(id)
}
