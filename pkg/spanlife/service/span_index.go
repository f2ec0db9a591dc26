package service

import (
	"github.com/Avi18971911/spanlife/pkg/quark"
	"github.com/Avi18971911/spanlife/pkg/trace/model"
)

// SpanIndex maps placed spans to their quark. Open spans must stay resolvable; implementations
// may forget closed spans to bound memory, at the price of parking late children of those spans.
type SpanIndex interface {
	Get(key model.SpanKey) (quark.Quark, bool)
	Put(key model.SpanKey, q quark.Quark)
	// Close tells the index the span will receive no more writes.
	Close(key model.SpanKey)
}

// MapSpanIndex never forgets a span.
type MapSpanIndex struct {
	spans map[model.SpanKey]quark.Quark
}

func NewMapSpanIndex() *MapSpanIndex {
	return &MapSpanIndex{spans: make(map[model.SpanKey]quark.Quark)}
}

func (mi *MapSpanIndex) Get(key model.SpanKey) (quark.Quark, bool) {
	q, ok := mi.spans[key]
	return q, ok
}

func (mi *MapSpanIndex) Put(key model.SpanKey, q quark.Quark) {
	mi.spans[key] = q
}

func (mi *MapSpanIndex) Close(model.SpanKey) {}

func (mi *MapSpanIndex) Len() int {
	return len(mi.spans)
}
