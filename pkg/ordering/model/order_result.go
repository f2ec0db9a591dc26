package model

import traceModel "github.com/Avi18971911/spanlife/pkg/trace/model"

type OrderResult struct {
	Transitions []traceModel.Transition
	// Dropped counts malformed or undecodable records that produced no transition.
	Dropped int
}

// ClockSource selects which timestamp stamps a transition.
type ClockSource string

const (
	// SpanClock uses the span's own start and end timestamps.
	SpanClock ClockSource = "span"
	// EventClock uses the timestamp of the carrying event when it is known, keeping the span duration.
	EventClock ClockSource = "event"
)
