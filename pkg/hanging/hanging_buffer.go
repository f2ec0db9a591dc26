package hanging

import (
	"container/heap"
	"errors"
	"sort"

	"github.com/Avi18971911/spanlife/pkg/trace/model"
)

// HangingBuffer holds spans whose parent has not been placed yet, keyed by the parent.
type HangingBuffer interface {
	// Park holds the Start transition of a span until parent is placed.
	Park(parent model.SpanKey, start model.Transition) error
	// Drain removes and returns the transitions parked under parent, ordered by start time then arrival.
	Drain(parent model.SpanKey) []model.Transition
	IsParked(span model.SpanKey) bool
	Len() int
	// Orphans returns every transition still parked, ordered by arrival.
	Orphans() []model.Transition
}

type parkedSpan struct {
	start model.Transition
	seq   uint64
}

type bucket []parkedSpan

func (b bucket) Len() int { return len(b) }

func (b bucket) Less(i, j int) bool {
	if b[i].start.Timestamp != b[j].start.Timestamp {
		return b[i].start.Timestamp < b[j].start.Timestamp
	}
	return b[i].seq < b[j].seq
}

func (b bucket) Swap(i, j int) { b[i], b[j] = b[j], b[i] }

func (b *bucket) Push(x any) { *b = append(*b, x.(parkedSpan)) }

func (b *bucket) Pop() any {
	old := *b
	n := len(old)
	item := old[n-1]
	*b = old[:n-1]
	return item
}

type HangingBufferImpl struct {
	buckets map[model.SpanKey]*bucket
	parked  map[model.SpanKey]model.SpanKey
	nextSeq uint64
}

func NewHangingBufferImpl() *HangingBufferImpl {
	return &HangingBufferImpl{
		buckets: make(map[model.SpanKey]*bucket),
		parked:  make(map[model.SpanKey]model.SpanKey),
	}
}

func (hb *HangingBufferImpl) Park(parent model.SpanKey, start model.Transition) error {
	key := start.Record.Key()
	if _, ok := hb.parked[key]; ok {
		return ErrAlreadyParked
	}
	b, ok := hb.buckets[parent]
	if !ok {
		b = &bucket{}
		hb.buckets[parent] = b
	}
	heap.Push(b, parkedSpan{start: start, seq: hb.nextSeq})
	hb.nextSeq++
	hb.parked[key] = parent
	return nil
}

func (hb *HangingBufferImpl) Drain(parent model.SpanKey) []model.Transition {
	b, ok := hb.buckets[parent]
	if !ok {
		return nil
	}
	delete(hb.buckets, parent)
	transitions := make([]model.Transition, 0, b.Len())
	for b.Len() > 0 {
		item := heap.Pop(b).(parkedSpan)
		delete(hb.parked, item.start.Record.Key())
		transitions = append(transitions, item.start)
	}
	return transitions
}

func (hb *HangingBufferImpl) IsParked(span model.SpanKey) bool {
	_, ok := hb.parked[span]
	return ok
}

func (hb *HangingBufferImpl) Len() int {
	return len(hb.parked)
}

func (hb *HangingBufferImpl) Orphans() []model.Transition {
	var items []parkedSpan
	for _, b := range hb.buckets {
		items = append(items, *b...)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	transitions := make([]model.Transition, len(items))
	for i, item := range items {
		transitions[i] = item.start
	}
	return transitions
}

var (
	ErrAlreadyParked = errors.New("span is already parked")
)
