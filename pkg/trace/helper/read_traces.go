package helper

import (
	"bufio"
	"fmt"
	"io"

	"github.com/Avi18971911/spanlife/pkg/trace/model"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.opentelemetry.io/collector/pdata/ptrace/ptraceotlp"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/proto"
)

const maxLineSize = 512 * 1024 * 1024

// ReadRawRecords reads OTLP-JSON traces, one serialized ptrace.Traces per line, and
// converts every span into a raw record. A line that cannot be decoded becomes a single
// raw record carrying the decode error so that it is counted instead of aborting the read.
func ReadRawRecords(r io.Reader) ([]model.RawRecord, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	u := ptrace.JSONUnmarshaler{}
	var records []model.RawRecord
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		traces, err := u.UnmarshalTraces(scanner.Bytes())
		if err != nil {
			records = append(records, model.RawRecord{
				PayloadErr: fmt.Errorf("failed to unmarshal traces on line %d: %w", line, err),
			})
			continue
		}
		req, err := toExportRequest(traces)
		if err != nil {
			records = append(records, model.RawRecord{
				PayloadErr: fmt.Errorf("failed to convert traces on line %d: %w", line, err),
			})
			continue
		}
		records = append(records, RawRecordsFromRequest(req)...)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan traces: %w", err)
	}
	return records, nil
}

// toExportRequest moves pdata traces onto the OTLP proto types through their shared wire format.
func toExportRequest(traces ptrace.Traces) (*protoTrace.ExportTraceServiceRequest, error) {
	data, err := ptraceotlp.NewExportRequestFromTraces(traces).MarshalProto()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal traces to proto: %w", err)
	}
	req := &protoTrace.ExportTraceServiceRequest{}
	if err := proto.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proto export request: %w", err)
	}
	return req, nil
}
