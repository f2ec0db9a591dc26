package server

import (
	"context"
	"errors"
	"time"

	"github.com/Avi18971911/spanlife/pkg/trace/helper"
	"github.com/Avi18971911/spanlife/pkg/trace/model"
	"github.com/Avi18971911/spanlife/pkg/write_buffer"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TraceServiceServerImpl receives OTLP trace exports and buffers them as raw records
// until the next construction run.
type TraceServiceServerImpl struct {
	protoTrace.UnimplementedTraceServiceServer
	logger *zap.Logger
	buffer write_buffer.WriteBuffer[model.RawRecord]
	now    func() time.Time
}

func NewTraceServiceServerImpl(
	logger *zap.Logger,
	buffer write_buffer.WriteBuffer[model.RawRecord],
) TraceServiceServerImpl {
	logger.Info("Creating new TraceServiceServerImpl")
	return TraceServiceServerImpl{
		logger: logger,
		buffer: buffer,
		now:    time.Now,
	}
}

func (tss TraceServiceServerImpl) Export(
	ctx context.Context,
	req *protoTrace.ExportTraceServiceRequest,
) (*protoTrace.ExportTraceServiceResponse, error) {
	// every resource span of one export shares the receive time as its event time
	received := tss.now().UnixNano()
	var records []model.RawRecord
	for _, resourceSpan := range req.GetResourceSpans() {
		records = append(records, helper.RawRecordsFromResourceSpans(resourceSpan, received)...)
	}
	if len(records) == 0 {
		return &protoTrace.ExportTraceServiceResponse{}, nil
	}

	if err := tss.buffer.WriteToBuffer(records); err != nil {
		tss.logger.Error("Failed to buffer exported spans", zap.Int("spans", len(records)), zap.Error(err))
		if errors.Is(err, write_buffer.ErrBufferFull) {
			return nil, status.Error(codes.ResourceExhausted, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	tss.logger.Debug("Buffered exported spans", zap.Int("spans", len(records)))
	return &protoTrace.ExportTraceServiceResponse{}, nil
}
