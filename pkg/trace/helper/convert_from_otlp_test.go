package helper

import (
	"testing"

	"github.com/Avi18971911/spanlife/pkg/trace/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	resourcev1 "go.opentelemetry.io/proto/otlp/resource/v1"
	v1 "go.opentelemetry.io/proto/otlp/trace/v1"
)

var (
	traceIDBytes  = []byte{0x5b, 0x8e, 0xff, 0xf7, 0x98, 0x03, 0x81, 0x03, 0xd2, 0x69, 0xb6, 0x33, 0x81, 0x3f, 0xc6, 0x0c}
	spanIDBytes   = []byte{0xee, 0xe1, 0x9b, 0x7e, 0xc3, 0xc1, 0xb1, 0x74}
	parentIDBytes = []byte{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11}
)

func TestRawRecordsFromRequest(t *testing.T) {
	t.Run("Should convert a span with its resource and events", func(t *testing.T) {
		span := getSpan(spanIDBytes, parentIDBytes, 100, 200)
		span.Status = &v1.Status{Code: v1.Status_STATUS_CODE_ERROR}
		span.Events = []*v1.Span_Event{
			{
				TimeUnixNano: 150,
				Name:         "retry",
				Attributes: []*commonv1.KeyValue{
					stringAttribute("reason", "timeout"),
					{Key: "attempt", Value: &commonv1.AnyValue{Value: &commonv1.AnyValue_IntValue{IntValue: 2}}},
				},
			},
		}
		req := getRequest(span)

		records := RawRecordsFromRequest(req)

		require.Len(t, records, 1)
		assert.NoError(t, records[0].PayloadErr)
		assert.Equal(t, model.Full, records[0].Kind)
		assert.Equal(t, int64(0), records[0].EventTime)
		assert.Equal(t, model.Record{
			TraceID:      "5b8efff798038103d269b633813fc60c",
			SpanID:       "eee19b7ec3c1b174",
			ParentSpanID: "0a0b0c0d0e0f1011",
			Name:         "checkout",
			StartTime:    100,
			EndTime:      200,
			Error:        true,
			ServiceName:  "cart",
			ProcessName:  "go",
			Logs:         []model.LogEntry{{Timestamp: 150, Text: "retry {attempt=2, reason=timeout}"}},
			ResourceAttributes: map[string]string{
				"service.name":         "cart",
				"process.runtime.name": "go",
			},
		}, records[0].Record)
	})

	t.Run("Should mark a span with a malformed id instead of dropping it", func(t *testing.T) {
		req := getRequest(getSpan([]byte{0x01, 0x02}, nil, 100, 200))

		records := RawRecordsFromRequest(req)

		require.Len(t, records, 1)
		assert.ErrorIs(t, records[0].PayloadErr, ErrInvalidIDWidth)
	})

	t.Run("Should mark a span with an all-zero span id", func(t *testing.T) {
		req := getRequest(getSpan(make([]byte, spanIDWidth), nil, 100, 200))

		records := RawRecordsFromRequest(req)

		require.Len(t, records, 1)
		assert.ErrorIs(t, records[0].PayloadErr, ErrZeroID)
	})

	t.Run("Should leave the parent empty for a root span", func(t *testing.T) {
		records := RawRecordsFromRequest(getRequest(getSpan(spanIDBytes, nil, 100, 200)))

		require.Len(t, records, 1)
		assert.True(t, records[0].Record.IsRoot())
		assert.False(t, records[0].Record.Error)
	})

	t.Run("Should treat an all-zero parent id as a root span", func(t *testing.T) {
		records := RawRecordsFromRequest(getRequest(getSpan(spanIDBytes, make([]byte, spanIDWidth), 100, 200)))

		require.Len(t, records, 1)
		assert.NoError(t, records[0].PayloadErr)
		assert.Equal(t, "", records[0].Record.ParentSpanID)
		assert.True(t, records[0].Record.IsRoot())
	})

	t.Run("Should mark a span whose parent id has the wrong width", func(t *testing.T) {
		records := RawRecordsFromRequest(getRequest(getSpan(spanIDBytes, []byte{0x01}, 100, 200)))

		require.Len(t, records, 1)
		assert.ErrorIs(t, records[0].PayloadErr, ErrInvalidIDWidth)
	})
}

func TestRawRecordsFromResourceSpans(t *testing.T) {
	t.Run("Should pull the event time back to the earliest span start", func(t *testing.T) {
		resourceSpans := getResourceSpans(
			getSpan(spanIDBytes, nil, 300, 400),
			getSpan(parentIDBytes, nil, 250, 500),
		)

		records := RawRecordsFromResourceSpans(resourceSpans, 280)

		require.Len(t, records, 2)
		assert.Equal(t, int64(250), records[0].EventTime)
		assert.Equal(t, int64(250), records[1].EventTime)
	})

	t.Run("Should keep an event time that precedes every span", func(t *testing.T) {
		records := RawRecordsFromResourceSpans(getResourceSpans(getSpan(spanIDBytes, nil, 300, 400)), 100)

		require.Len(t, records, 1)
		assert.Equal(t, int64(100), records[0].EventTime)
	})
}

func TestHexID(t *testing.T) {
	t.Run("Should render an empty id as empty", func(t *testing.T) {
		id, err := HexID(nil, spanIDWidth)
		assert.NoError(t, err)
		assert.Equal(t, "", id)
	})

	t.Run("Should reject an id of the wrong width", func(t *testing.T) {
		_, err := HexID(traceIDBytes, spanIDWidth)
		assert.ErrorIs(t, err, ErrInvalidIDWidth)
	})
}

func getRequest(spans ...*v1.Span) *protoTrace.ExportTraceServiceRequest {
	return &protoTrace.ExportTraceServiceRequest{
		ResourceSpans: []*v1.ResourceSpans{getResourceSpans(spans...)},
	}
}

func getResourceSpans(spans ...*v1.Span) *v1.ResourceSpans {
	return &v1.ResourceSpans{
		Resource: &resourcev1.Resource{
			Attributes: []*commonv1.KeyValue{
				stringAttribute("service.name", "cart"),
				stringAttribute("process.runtime.name", "go"),
			},
		},
		ScopeSpans: []*v1.ScopeSpans{{Spans: spans}},
	}
}

func getSpan(spanID, parentID []byte, start, end uint64) *v1.Span {
	return &v1.Span{
		TraceId:           traceIDBytes,
		SpanId:            spanID,
		ParentSpanId:      parentID,
		Name:              "checkout",
		StartTimeUnixNano: start,
		EndTimeUnixNano:   end,
	}
}

func stringAttribute(key, value string) *commonv1.KeyValue {
	return &commonv1.KeyValue{Key: key, Value: &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: value}}}
}
