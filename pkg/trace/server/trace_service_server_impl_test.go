package server

import (
	"context"
	"testing"
	"time"

	"github.com/Avi18971911/spanlife/pkg/trace/model"
	"github.com/Avi18971911/spanlife/pkg/write_buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	v1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestTraceServiceServerImpl_Export(t *testing.T) {
	t.Run("Should buffer every span with the receive time as event time", func(t *testing.T) {
		buffer := write_buffer.NewWriteBufferImpl[model.RawRecord](0, zap.NewNop())
		tss := getNewTraceServiceServer(buffer, time.Unix(0, 5000))

		_, err := tss.Export(context.Background(), getRequest(getSpan(0x01, 100), getSpan(0x02, 200)))

		require.NoError(t, err)
		records := buffer.Drain()
		require.Len(t, records, 2)
		assert.Equal(t, "0100000000000000", records[0].Record.SpanID)
		assert.Equal(t, int64(100), records[0].EventTime)
		assert.Equal(t, int64(100), records[1].EventTime)
	})

	t.Run("Should answer resource exhausted when the buffer is full", func(t *testing.T) {
		buffer := write_buffer.NewWriteBufferImpl[model.RawRecord](1, zap.NewNop())
		tss := getNewTraceServiceServer(buffer, time.Unix(0, 5000))

		_, err := tss.Export(context.Background(), getRequest(getSpan(0x01, 100), getSpan(0x02, 200)))

		assert.Equal(t, codes.ResourceExhausted, status.Code(err))
		assert.Equal(t, 0, buffer.Len())
	})

	t.Run("Should accept an empty export", func(t *testing.T) {
		buffer := write_buffer.NewWriteBufferImpl[model.RawRecord](1, zap.NewNop())
		tss := getNewTraceServiceServer(buffer, time.Unix(0, 5000))

		res, err := tss.Export(context.Background(), &protoTrace.ExportTraceServiceRequest{})

		require.NoError(t, err)
		assert.NotNil(t, res)
	})
}

func getNewTraceServiceServer(buffer write_buffer.WriteBuffer[model.RawRecord], now time.Time) TraceServiceServerImpl {
	tss := NewTraceServiceServerImpl(zap.NewNop(), buffer)
	tss.now = func() time.Time { return now }
	return tss
}

func getRequest(spans ...*v1.Span) *protoTrace.ExportTraceServiceRequest {
	return &protoTrace.ExportTraceServiceRequest{
		ResourceSpans: []*v1.ResourceSpans{{ScopeSpans: []*v1.ScopeSpans{{Spans: spans}}}},
	}
}

func getSpan(id byte, start uint64) *v1.Span {
	return &v1.Span{
		TraceId:           []byte{0x5b, 0x8e, 0xff, 0xf7, 0x98, 0x03, 0x81, 0x03, 0xd2, 0x69, 0xb6, 0x33, 0x81, 0x3f, 0xc6, 0x0c},
		SpanId:            []byte{id, 0, 0, 0, 0, 0, 0, 0},
		Name:              "op",
		StartTimeUnixNano: start,
		EndTimeUnixNano:   start + 50,
	}
}
