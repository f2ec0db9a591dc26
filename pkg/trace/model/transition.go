package model

type TransitionKind int

const (
	Start TransitionKind = iota
	End
)

func (k TransitionKind) String() string {
	switch k {
	case Start:
		return "start"
	case End:
		return "end"
	default:
		return "unknown"
	}
}

// Transition is the unit consumed by the hierarchy builder: one Start or End of one span.
type Transition struct {
	Kind      TransitionKind
	Timestamp int64
	Record    Record
}

type RawKind int

const (
	// Full records carry both the start and the end of a span.
	Full RawKind = iota
	StartMarker
	EndMarker
)

// RawRecord is one decoded upstream record before ordering.
type RawRecord struct {
	Kind RawKind
	// EventTime is the timestamp of the carrying event, zero when unknown.
	EventTime int64
	Record    Record
	// PayloadErr is set when the upstream decoder could not parse the record.
	PayloadErr error
}
