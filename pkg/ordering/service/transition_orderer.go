package service

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/Avi18971911/spanlife/pkg/ordering/model"
	traceModel "github.com/Avi18971911/spanlife/pkg/trace/model"
	"go.uber.org/zap"
)

// TransitionOrderer turns decoded records into a chronologically consistent transition stream.
type TransitionOrderer interface {
	Order(ctx context.Context, records []traceModel.RawRecord) (model.OrderResult, error)
}

// SortedOrderer expands every record into its transitions and stably sorts them by timestamp,
// so transitions with equal timestamps keep their arrival order.
type SortedOrderer struct {
	clock  model.ClockSource
	logger *zap.Logger
}

func NewSortedOrderer(clock model.ClockSource, logger *zap.Logger) TransitionOrderer {
	return &SortedOrderer{
		clock:  clock,
		logger: logger,
	}
}

func (so *SortedOrderer) Order(
	ctx context.Context,
	records []traceModel.RawRecord,
) (model.OrderResult, error) {
	result := model.OrderResult{
		Transitions: make([]traceModel.Transition, 0, 2*len(records)),
	}
	for i, raw := range records {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("ordering cancelled after %d records: %w", i, err)
		}
		if err := validateRecord(raw); err != nil {
			result.Dropped++
			so.logger.Debug("Dropping malformed record", zap.Int("position", i), zap.Error(err))
			continue
		}
		result.Transitions = append(result.Transitions, expand(raw, so.clock)...)
	}
	sort.SliceStable(result.Transitions, func(i, j int) bool {
		return result.Transitions[i].Timestamp < result.Transitions[j].Timestamp
	})
	return result, nil
}

// PassThroughOrderer stamps records that already arrive one per transition, without re-sorting.
type PassThroughOrderer struct {
	clock   model.ClockSource
	logger  *zap.Logger
	dropped atomic.Int64
}

func NewPassThroughOrderer(clock model.ClockSource, logger *zap.Logger) *PassThroughOrderer {
	return &PassThroughOrderer{
		clock:  clock,
		logger: logger,
	}
}

func (po *PassThroughOrderer) Order(
	ctx context.Context,
	records []traceModel.RawRecord,
) (model.OrderResult, error) {
	result := model.OrderResult{
		Transitions: make([]traceModel.Transition, 0, len(records)),
	}
	for i, raw := range records {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("ordering cancelled after %d records: %w", i, err)
		}
		if err := validateRecord(raw); err != nil {
			result.Dropped++
			po.logger.Debug("Dropping malformed record", zap.Int("position", i), zap.Error(err))
			continue
		}
		result.Transitions = append(result.Transitions, expand(raw, po.clock)...)
	}
	return result, nil
}

// Stream stamps records as they arrive. The returned channel is closed once in is closed or ctx is done.
// Dropped reports the malformed records seen so far.
func (po *PassThroughOrderer) Stream(
	ctx context.Context,
	in <-chan traceModel.RawRecord,
) <-chan traceModel.Transition {
	out := make(chan traceModel.Transition)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				if err := validateRecord(raw); err != nil {
					po.dropped.Add(1)
					po.logger.Debug("Dropping malformed record", zap.Error(err))
					continue
				}
				for _, transition := range expand(raw, po.clock) {
					select {
					case out <- transition:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out
}

func (po *PassThroughOrderer) Dropped() int {
	return int(po.dropped.Load())
}

func expand(raw traceModel.RawRecord, clock model.ClockSource) []traceModel.Transition {
	switch raw.Kind {
	case traceModel.StartMarker:
		return []traceModel.Transition{
			{Kind: traceModel.Start, Timestamp: startTimestamp(raw, clock), Record: raw.Record},
		}
	case traceModel.EndMarker:
		return []traceModel.Transition{
			{Kind: traceModel.End, Timestamp: endTimestamp(raw, clock), Record: raw.Record},
		}
	default:
		return []traceModel.Transition{
			{Kind: traceModel.Start, Timestamp: startTimestamp(raw, clock), Record: raw.Record},
			{Kind: traceModel.End, Timestamp: endTimestamp(raw, clock), Record: raw.Record},
		}
	}
}
