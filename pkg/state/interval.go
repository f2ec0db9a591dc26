package state

import (
	"maps"

	"github.com/Avi18971911/spanlife/pkg/quark"
)

// Value is the payload held by an attribute over an interval. A cleared attribute holds no Value.
type Value struct {
	Text       string            `json:"text,omitempty" cbor:"1,keyasint,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" cbor:"2,keyasint,omitempty"`
}

func TextValue(text string) Value {
	return Value{Text: text}
}

func (v Value) Equal(other Value) bool {
	return v.Text == other.Text && maps.Equal(v.Attributes, other.Attributes)
}

// Interval is a value valid over the half-open range [Start, End) on one quark.
// Ongoing intervals have not been closed yet and report End as OngoingEnd.
type Interval struct {
	Quark   quark.Quark `json:"quark"`
	Value   Value       `json:"value"`
	Start   int64       `json:"start"`
	End     int64       `json:"end"`
	Ongoing bool        `json:"ongoing,omitempty"`
}

const OngoingEnd int64 = 1<<63 - 1

// Overlaps reports whether the interval intersects the closed range [t0, t1].
func (i Interval) Overlaps(t0, t1 int64) bool {
	return i.Start <= t1 && i.End > t0
}

type Ongoing struct {
	Value Value
	Start int64
}
