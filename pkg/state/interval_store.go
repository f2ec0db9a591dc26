package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Avi18971911/spanlife/pkg/quark"
)

// IntervalStore is the write surface of the append-time-ordered attribute store.
type IntervalStore interface {
	GetOrCreatePath(parent quark.Quark, segment string) quark.Quark
	// SetValue terminates the ongoing interval of q at t, if any, and opens a new one holding value.
	SetValue(q quark.Quark, value Value, t int64) error
	// Clear terminates the ongoing interval of q at t.
	Clear(q quark.Quark, t int64) error
	QueryOngoing(q quark.Quark) (Ongoing, bool)
}

type attributeState struct {
	ongoing   *Ongoing
	lastWrite int64
	written   bool
	intervals []int
}

// MemoryStore keeps every committed interval in memory, in commit order.
// It has a single writer; readers must not run concurrently with a construction run.
type MemoryStore struct {
	tree       *quark.AttributeTree
	attributes map[quark.Quark]*attributeState
	intervals  []Interval
}

func NewMemoryStore(tree *quark.AttributeTree) *MemoryStore {
	return &MemoryStore{
		tree:       tree,
		attributes: make(map[quark.Quark]*attributeState),
	}
}

func (ms *MemoryStore) Tree() *quark.AttributeTree {
	return ms.tree
}

func (ms *MemoryStore) GetOrCreatePath(parent quark.Quark, segment string) quark.Quark {
	return ms.tree.GetOrCreate(parent, segment)
}

func (ms *MemoryStore) SetValue(q quark.Quark, value Value, t int64) error {
	attr, err := ms.writableAttribute(q, t)
	if err != nil {
		return err
	}
	ms.commitOngoing(q, attr, t)
	attr.ongoing = &Ongoing{Value: value, Start: t}
	return nil
}

func (ms *MemoryStore) Clear(q quark.Quark, t int64) error {
	attr, err := ms.writableAttribute(q, t)
	if err != nil {
		return err
	}
	ms.commitOngoing(q, attr, t)
	return nil
}

func (ms *MemoryStore) QueryOngoing(q quark.Quark) (Ongoing, bool) {
	attr, ok := ms.attributes[q]
	if !ok || attr.ongoing == nil {
		return Ongoing{}, false
	}
	return *attr.ongoing, true
}

func (ms *MemoryStore) writableAttribute(q quark.Quark, t int64) (*attributeState, error) {
	if !ms.tree.Contains(q) {
		return nil, fmt.Errorf("quark %d: %w", q, ErrUnknownQuark)
	}
	attr, ok := ms.attributes[q]
	if !ok {
		attr = &attributeState{}
		ms.attributes[q] = attr
	}
	if attr.written && t < attr.lastWrite {
		return nil, fmt.Errorf(
			"write at %d on %s precedes last write at %d: %w",
			t, ms.tree.FullPath(q), attr.lastWrite, ErrTimeOutOfOrder,
		)
	}
	attr.written = true
	attr.lastWrite = t
	return attr, nil
}

// commitOngoing closes the ongoing interval at t. Zero-width intervals are discarded.
func (ms *MemoryStore) commitOngoing(q quark.Quark, attr *attributeState, t int64) {
	if attr.ongoing == nil {
		return
	}
	if t > attr.ongoing.Start {
		attr.intervals = append(attr.intervals, len(ms.intervals))
		ms.intervals = append(ms.intervals, Interval{
			Quark: q,
			Value: attr.ongoing.Value,
			Start: attr.ongoing.Start,
			End:   t,
		})
	}
	attr.ongoing = nil
}

// Intervals returns every committed interval in commit order.
func (ms *MemoryStore) Intervals() []Interval {
	out := make([]Interval, len(ms.intervals))
	copy(out, ms.intervals)
	return out
}

// IntervalsOf returns the committed intervals of q followed by its ongoing interval, if any.
func (ms *MemoryStore) IntervalsOf(q quark.Quark) []Interval {
	attr, ok := ms.attributes[q]
	if !ok {
		return nil
	}
	out := make([]Interval, 0, len(attr.intervals)+1)
	for _, idx := range attr.intervals {
		out = append(out, ms.intervals[idx])
	}
	if attr.ongoing != nil {
		out = append(out, ongoingInterval(q, *attr.ongoing))
	}
	return out
}

// OngoingIntervals returns every interval not yet closed, ordered by quark.
func (ms *MemoryStore) OngoingIntervals() []Interval {
	var out []Interval
	for q, attr := range ms.attributes {
		if attr.ongoing != nil {
			out = append(out, ongoingInterval(q, *attr.ongoing))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Quark < out[j].Quark })
	return out
}

// QueryRange returns the committed and ongoing intervals under subtree that overlap [t0, t1],
// ordered by start time then quark.
func (ms *MemoryStore) QueryRange(subtree quark.Quark, t0, t1 int64) []Interval {
	var out []Interval
	for _, interval := range ms.intervals {
		if interval.Overlaps(t0, t1) && ms.tree.IsDescendant(interval.Quark, subtree) {
			out = append(out, interval)
		}
	}
	for _, interval := range ms.OngoingIntervals() {
		if interval.Overlaps(t0, t1) && ms.tree.IsDescendant(interval.Quark, subtree) {
			out = append(out, interval)
		}
	}
	sortByStart(out)
	return out
}

// LogMarkers returns the log marker intervals recorded under the logs attribute of a trace.
func (ms *MemoryStore) LogMarkers(traceQuark quark.Quark) []Interval {
	var logsQuark quark.Quark = quark.Root
	for _, child := range ms.tree.Children(traceQuark) {
		if ms.tree.Name(child) == LogsAttribute {
			logsQuark = child
			break
		}
	}
	if logsQuark == quark.Root {
		return nil
	}
	return ms.QueryRange(logsQuark, 0, OngoingEnd)
}

func ongoingInterval(q quark.Quark, ongoing Ongoing) Interval {
	return Interval{
		Quark:   q,
		Value:   ongoing.Value,
		Start:   ongoing.Start,
		End:     OngoingEnd,
		Ongoing: true,
	}
}

func sortByStart(intervals []Interval) {
	sort.SliceStable(intervals, func(i, j int) bool {
		if intervals[i].Start != intervals[j].Start {
			return intervals[i].Start < intervals[j].Start
		}
		return intervals[i].Quark < intervals[j].Quark
	})
}

var (
	ErrUnknownQuark   = errors.New("quark does not exist in the attribute tree")
	ErrTimeOutOfOrder = errors.New("write time precedes the last write on the attribute")
)
