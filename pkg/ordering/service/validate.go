package service

import (
	"errors"
	"fmt"

	"github.com/Avi18971911/spanlife/pkg/ordering/model"
	traceModel "github.com/Avi18971911/spanlife/pkg/trace/model"
)

func validateRecord(raw traceModel.RawRecord) error {
	if raw.PayloadErr != nil {
		return fmt.Errorf("%w: %w", ErrUnparseablePayload, raw.PayloadErr)
	}
	record := raw.Record
	if record.TraceID == "" || record.SpanID == "" {
		return ErrMissingIdentifier
	}
	switch raw.Kind {
	case traceModel.Full:
		if record.EndTime < record.StartTime {
			return ErrEndBeforeStart
		}
	case traceModel.StartMarker, traceModel.EndMarker:
		// markers may not know both timestamps yet
		if record.EndTime != 0 && record.EndTime < record.StartTime {
			return ErrEndBeforeStart
		}
	default:
		return fmt.Errorf("raw record kind %d: %w", raw.Kind, ErrUnknownKind)
	}
	return nil
}

// startTimestamp and endTimestamp stamp the transitions of a record according to the clock source.
func startTimestamp(raw traceModel.RawRecord, clock model.ClockSource) int64 {
	if clock == model.EventClock && raw.EventTime != 0 {
		return raw.EventTime
	}
	return raw.Record.StartTime
}

func endTimestamp(raw traceModel.RawRecord, clock model.ClockSource) int64 {
	if clock == model.EventClock && raw.EventTime != 0 {
		if raw.Kind == traceModel.EndMarker {
			return raw.EventTime
		}
		return raw.EventTime + (raw.Record.EndTime - raw.Record.StartTime)
	}
	return raw.Record.EndTime
}

var (
	ErrUnparseablePayload = errors.New("record payload could not be decoded")
	ErrMissingIdentifier  = errors.New("record is missing its trace id or span id")
	ErrEndBeforeStart     = errors.New("record ends before it starts")
	ErrUnknownKind        = errors.New("unknown raw record kind")
)
