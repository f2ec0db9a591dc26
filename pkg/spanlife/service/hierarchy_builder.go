package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Avi18971911/spanlife/pkg/hanging"
	"github.com/Avi18971911/spanlife/pkg/quark"
	spanlifeModel "github.com/Avi18971911/spanlife/pkg/spanlife/model"
	"github.com/Avi18971911/spanlife/pkg/state"
	"github.com/Avi18971911/spanlife/pkg/trace/model"
	"go.uber.org/zap"
)

// SchemaVersion tags every store this builder produces. A store built under another
// version has to be rebuilt from scratch.
const SchemaVersion = 3

// HierarchyBuilder places span transitions into the attribute hierarchy of an interval store.
// A builder serves a single construction run and is not safe for concurrent use.
type HierarchyBuilder interface {
	Process(transition model.Transition)
	Run(ctx context.Context, transitions []model.Transition) (spanlifeModel.Summary, error)
	Consume(ctx context.Context, transitions <-chan model.Transition) (spanlifeModel.Summary, error)
	// Finish reports the run, counting every span still parked as an orphan.
	Finish() spanlifeModel.Summary
}

type HierarchyBuilderImpl struct {
	store          state.IntervalStore
	hanging        hanging.HangingBuffer
	spans          SpanIndex
	resourceQuarks map[model.SpanKey]quark.Quark
	// pendingEnds holds End timestamps of spans that were not open when the End arrived.
	// A later Start consumes them; the rest become placeholders in Finish.
	pendingEnds     map[model.SpanKey]int64
	pendingEndOrder []model.SpanKey
	summary     spanlifeModel.Summary
	logger      *zap.Logger
}

func NewHierarchyBuilder(
	store state.IntervalStore,
	hangingBuffer hanging.HangingBuffer,
	spans SpanIndex,
	logger *zap.Logger,
) *HierarchyBuilderImpl {
	return &HierarchyBuilderImpl{
		store:          store,
		hanging:        hangingBuffer,
		spans:          spans,
		resourceQuarks: make(map[model.SpanKey]quark.Quark),
		pendingEnds:    make(map[model.SpanKey]int64),
		summary:        spanlifeModel.Summary{SchemaVersion: SchemaVersion},
		logger:         logger,
	}
}

func (hb *HierarchyBuilderImpl) Run(
	ctx context.Context,
	transitions []model.Transition,
) (spanlifeModel.Summary, error) {
	for i, transition := range transitions {
		if err := ctx.Err(); err != nil {
			hb.summary.Cancelled = true
			hb.logger.Warn("Construction cancelled", zap.Int("processed", i), zap.Int("total", len(transitions)))
			return hb.Finish(), fmt.Errorf("%w: %w", ErrConstructionCancelled, err)
		}
		hb.Process(transition)
	}
	return hb.Finish(), nil
}

func (hb *HierarchyBuilderImpl) Consume(
	ctx context.Context,
	transitions <-chan model.Transition,
) (spanlifeModel.Summary, error) {
	processed := 0
	for {
		select {
		case <-ctx.Done():
			hb.summary.Cancelled = true
			hb.logger.Warn("Construction cancelled", zap.Int("processed", processed))
			return hb.Finish(), fmt.Errorf("%w: %w", ErrConstructionCancelled, ctx.Err())
		case transition, ok := <-transitions:
			if !ok {
				return hb.Finish(), nil
			}
			hb.Process(transition)
			processed++
		}
	}
}

func (hb *HierarchyBuilderImpl) Process(transition model.Transition) {
	switch transition.Kind {
	case model.Start:
		hb.handleStart(transition)
	case model.End:
		hb.handleEnd(transition)
	default:
		hb.logger.Warn("Ignoring transition of unknown kind", zap.Int("kind", int(transition.Kind)))
	}
}

func (hb *HierarchyBuilderImpl) Finish() spanlifeModel.Summary {
	hb.placeDanglingEnds()
	orphans := hb.hanging.Orphans()
	hb.summary.Orphans = len(orphans)
	hb.summary.OrphanSpans = make([]model.SpanKey, len(orphans))
	for i, orphan := range orphans {
		hb.summary.OrphanSpans[i] = orphan.Record.Key()
	}
	hb.logger.Info("Span hierarchy constructed",
		zap.Int("opened", hb.summary.Opened),
		zap.Int("closed", hb.summary.Closed),
		zap.Int("orphans", hb.summary.Orphans),
		zap.Int("dangling_ends", hb.summary.DanglingEnds),
		zap.Int("duplicate_starts", hb.summary.DuplicateStarts),
		zap.Int("duplicate_ends", hb.summary.DuplicateEnds),
		zap.Int("store_errors", hb.summary.StoreErrors),
		zap.Bool("cancelled", hb.summary.Cancelled),
	)
	summary := hb.summary
	summary.OrphanSpans = slices.Clone(hb.summary.OrphanSpans)
	return summary
}

func (hb *HierarchyBuilderImpl) handleStart(transition model.Transition) {
	key := transition.Record.Key()
	if _, placed := hb.spans.Get(key); placed || hb.hanging.IsParked(key) {
		hb.summary.DuplicateStarts++
		hb.logger.Debug("Ignoring duplicate start", zap.String("span", key.String()))
		return
	}
	if parentKey, hasParent := transition.Record.ParentKey(); hasParent {
		if _, found := hb.spans.Get(parentKey); !found {
			if err := hb.hanging.Park(parentKey, transition); err != nil {
				hb.summary.DuplicateStarts++
				hb.logger.Debug("Failed to park span", zap.String("span", key.String()), zap.Error(err))
			}
			return
		}
	}

	// Opening a span may release a backlog of parked descendants; walk it breadth first.
	queue := []model.Transition{transition}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		hb.openSpan(current)
		queue = append(queue, hb.hanging.Drain(current.Record.Key())...)
	}
}

func (hb *HierarchyBuilderImpl) openSpan(transition model.Transition) {
	record := transition.Record
	key := record.Key()
	traceQuark := hb.store.GetOrCreatePath(quark.Root, key.TraceID)

	parentQuark, placedUnderParent := quark.Root, false
	if parentKey, hasParent := record.ParentKey(); hasParent {
		parentQuark, placedUnderParent = hb.spans.Get(parentKey)
	}
	if !placedUnderParent {
		parentQuark = hb.store.GetOrCreatePath(traceQuark, state.SpansAttribute)
	}

	spanQuark := hb.store.GetOrCreatePath(parentQuark, key.SpanID)
	hb.write(hb.store.SetValue(spanQuark, spanValue(record), transition.Timestamp), key)
	hb.spans.Put(key, spanQuark)
	hb.summary.Opened++

	hb.attachLogs(traceQuark, record)
	hb.attachResources(traceQuark, record, transition.Timestamp)

	if end, ok := hb.pendingEnds[key]; ok {
		delete(hb.pendingEnds, key)
		hb.closeSpan(key, spanQuark, max(end, transition.Timestamp))
	}
}

func (hb *HierarchyBuilderImpl) handleEnd(transition model.Transition) {
	key := transition.Record.Key()
	if spanQuark, found := hb.spans.Get(key); found {
		hb.closeSpan(key, spanQuark, transition.Timestamp)
		return
	}
	if _, pending := hb.pendingEnds[key]; pending {
		hb.summary.DuplicateEnds++
		hb.logger.Debug("Ignoring repeated end of a span that never opened", zap.String("span", key.String()))
		return
	}

	// The Start may still arrive (parked, or an unsynchronised source); hold the end until Finish.
	hb.summary.DanglingEnds++
	hb.pendingEnds[key] = transition.Timestamp
	hb.pendingEndOrder = append(hb.pendingEndOrder, key)
	hb.logger.Debug("End without an open span",
		zap.String("span", key.String()),
		zap.Int64("end", transition.Timestamp),
	)
}

// placeDanglingEnds records every end whose span never started under the trace root, so the
// end is visible in the store without an interval.
func (hb *HierarchyBuilderImpl) placeDanglingEnds() {
	for _, key := range hb.pendingEndOrder {
		end, ok := hb.pendingEnds[key]
		if !ok {
			continue
		}
		delete(hb.pendingEnds, key)
		traceQuark := hb.store.GetOrCreatePath(quark.Root, key.TraceID)
		spansQuark := hb.store.GetOrCreatePath(traceQuark, state.SpansAttribute)
		spanQuark := hb.store.GetOrCreatePath(spansQuark, key.SpanID)
		hb.write(hb.store.Clear(spanQuark, end), key)
	}
	hb.pendingEndOrder = hb.pendingEndOrder[:0]
}

func (hb *HierarchyBuilderImpl) closeSpan(key model.SpanKey, spanQuark quark.Quark, end int64) {
	if _, open := hb.store.QueryOngoing(spanQuark); !open {
		hb.summary.DuplicateEnds++
		hb.logger.Debug("Ignoring end of a span that is not open", zap.String("span", key.String()))
		return
	}
	hb.write(hb.store.Clear(spanQuark, end), key)
	hb.spans.Close(key)
	hb.summary.Closed++

	resourceQuark, ok := hb.resourceQuarks[key]
	if !ok {
		return
	}
	delete(hb.resourceQuarks, key)
	ongoing, open := hb.store.QueryOngoing(resourceQuark)
	if !open {
		return
	}
	hb.write(hb.store.Clear(resourceQuark, max(end, ongoing.Start)), key)
}

// attachLogs writes each log as a marker interval [ts, ts+1). Markers never overlap: a log
// sharing the timestamp of the previous one is shifted to right after it.
func (hb *HierarchyBuilderImpl) attachLogs(traceQuark quark.Quark, record model.Record) {
	if len(record.Logs) == 0 {
		return
	}
	key := record.Key()
	logsQuark := hb.store.GetOrCreatePath(traceQuark, state.LogsAttribute)
	spanLogsQuark := hb.store.GetOrCreatePath(logsQuark, key.SpanID)

	logs := slices.Clone(record.Logs)
	slices.SortStableFunc(logs, func(a, b model.LogEntry) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	first := true
	var lastEnd int64
	for _, entry := range logs {
		ts := entry.Timestamp
		if !first && ts < lastEnd {
			ts = lastEnd
		}
		hb.write(hb.store.SetValue(spanLogsQuark, state.TextValue(entry.Text), ts), key)
		hb.write(hb.store.Clear(spanLogsQuark, ts+1), key)
		lastEnd = ts + 1
		first = false
	}
}

func (hb *HierarchyBuilderImpl) attachResources(traceQuark quark.Quark, record model.Record, start int64) {
	if len(record.ResourceAttributes) == 0 {
		return
	}
	key := record.Key()
	if _, seen := hb.resourceQuarks[key]; seen {
		return
	}
	resourcesQuark := hb.store.GetOrCreatePath(traceQuark, state.ResourcesAttribute)
	spanResourcesQuark := hb.store.GetOrCreatePath(resourcesQuark, key.SpanID)
	value := state.Value{Attributes: make(map[string]string, len(record.ResourceAttributes))}
	for k, v := range record.ResourceAttributes {
		value.Attributes[k] = v
	}
	hb.write(hb.store.SetValue(spanResourcesQuark, value, start), key)
	hb.resourceQuarks[key] = spanResourcesQuark
}

// write counts a failed store write. A single rejected write never aborts the run.
func (hb *HierarchyBuilderImpl) write(err error, key model.SpanKey) {
	if err == nil {
		return
	}
	hb.summary.StoreErrors++
	hb.logger.Warn("Failed to write to interval store", zap.String("span", key.String()), zap.Error(err))
}

// spanValue holds the span name plus the display metadata worth keeping next to it.
func spanValue(record model.Record) state.Value {
	value := state.TextValue(record.Name)
	attributes := make(map[string]string)
	if record.Error {
		attributes[ErrorAttributeKey] = "true"
	}
	if record.ServiceName != "" {
		attributes[ServiceAttributeKey] = record.ServiceName
	}
	if record.ProcessName != "" {
		attributes[ProcessAttributeKey] = record.ProcessName
	}
	if len(attributes) > 0 {
		value.Attributes = attributes
	}
	return value
}

const (
	ErrorAttributeKey   = "error"
	ServiceAttributeKey = "service"
	ProcessAttributeKey = "process"
)

var (
	ErrConstructionCancelled = errors.New("construction cancelled before the end of the stream")
)
