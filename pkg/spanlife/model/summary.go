package model

import traceModel "github.com/Avi18971911/spanlife/pkg/trace/model"

// Summary reports what a construction run produced and which anomalies it absorbed.
type Summary struct {
	SchemaVersion int `json:"schema_version"`
	Opened        int `json:"opened"`
	Closed        int `json:"closed"`
	// Malformed records were dropped before reaching the builder.
	Malformed int `json:"malformed"`
	// Orphans were parked under a parent that never arrived and were never written.
	Orphans         int                  `json:"orphans"`
	OrphanSpans     []traceModel.SpanKey `json:"orphan_spans,omitempty"`
	DanglingEnds    int                  `json:"dangling_ends"`
	DuplicateStarts int                  `json:"duplicate_starts"`
	DuplicateEnds   int                  `json:"duplicate_ends"`
	StoreErrors     int                  `json:"store_errors"`
	Cancelled       bool                 `json:"cancelled"`
}

func (s Summary) Anomalies() int {
	return s.Malformed + s.Orphans + s.DanglingEnds + s.DuplicateStarts + s.DuplicateEnds + s.StoreErrors
}
