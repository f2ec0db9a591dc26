package helper

import (
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Avi18971911/spanlife/pkg/trace/model"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	v1 "go.opentelemetry.io/proto/otlp/trace/v1"
)

const (
	serviceNameKey = string(semconv.ServiceNameKey)
	processNameKey = string(semconv.ProcessRuntimeNameKey)

	traceIDWidth = 16
	spanIDWidth  = 8
)

// RawRecordsFromRequest flattens an OTLP export request into one Full raw record per span.
func RawRecordsFromRequest(req *protoTrace.ExportTraceServiceRequest) []model.RawRecord {
	var records []model.RawRecord
	for _, resourceSpan := range req.GetResourceSpans() {
		records = append(records, RawRecordsFromResourceSpans(resourceSpan, 0)...)
	}
	return records
}

// RawRecordsFromResourceSpans converts every span under one resource. eventTime is the
// timestamp of the carrying event, zero when the source has none. A non-zero event time is
// pulled back to the earliest span start it carries so that no span starts before its event.
func RawRecordsFromResourceSpans(resourceSpan *v1.ResourceSpans, eventTime int64) []model.RawRecord {
	attributes := getResourceAttributes(resourceSpan)
	serviceName := attributes[serviceNameKey]
	processName := attributes[processNameKey]

	var records []model.RawRecord
	for _, scopeSpan := range resourceSpan.GetScopeSpans() {
		for _, span := range scopeSpan.GetSpans() {
			record, err := getTypedRecord(span, serviceName, processName, attributes)
			records = append(records, model.RawRecord{
				Kind:       model.Full,
				Record:     record,
				PayloadErr: err,
			})
		}
	}

	eventTime = clampEventTime(records, eventTime)
	for i := range records {
		records[i].EventTime = eventTime
	}
	return records
}

func clampEventTime(records []model.RawRecord, eventTime int64) int64 {
	if eventTime == 0 {
		return 0
	}
	for _, record := range records {
		if record.PayloadErr == nil && record.Record.StartTime > 0 {
			eventTime = min(eventTime, record.Record.StartTime)
		}
	}
	return eventTime
}

func getTypedRecord(
	span *v1.Span,
	serviceName string,
	processName string,
	resourceAttributes map[string]string,
) (model.Record, error) {
	traceID, err := HexID(span.GetTraceId(), traceIDWidth)
	if err != nil {
		return model.Record{}, fmt.Errorf("invalid trace id: %w", err)
	}
	spanID, err := HexID(span.GetSpanId(), spanIDWidth)
	if err != nil {
		return model.Record{}, fmt.Errorf("invalid span id: %w", err)
	}
	if err := validateIDs(span); err != nil {
		return model.Record{}, err
	}
	parentSpanID, err := getParentSpanID(span)
	if err != nil {
		return model.Record{}, err
	}

	var resources map[string]string
	if len(resourceAttributes) > 0 {
		resources = make(map[string]string, len(resourceAttributes))
		for k, v := range resourceAttributes {
			resources[k] = v
		}
	}

	return model.Record{
		TraceID:            traceID,
		SpanID:             spanID,
		ParentSpanID:       parentSpanID,
		Name:               span.GetName(),
		StartTime:          int64(span.GetStartTimeUnixNano()),
		EndTime:            int64(span.GetEndTimeUnixNano()),
		Error:              IsErrorStatus(span.GetStatus()),
		ServiceName:        serviceName,
		ProcessName:        processName,
		Logs:               getLogs(span),
		ResourceAttributes: resources,
	}, nil
}

// HexID renders a fixed-width binary identifier as lowercase hex. An empty id renders as "".
func HexID(id []byte, width int) (string, error) {
	if len(id) == 0 {
		return "", nil
	}
	if len(id) != width {
		return "", fmt.Errorf("expected %d bytes, got %d: %w", width, len(id), ErrInvalidIDWidth)
	}
	return hex.EncodeToString(id), nil
}

// validateIDs rejects the all-zero identifiers that OTLP reserves for "no id".
func validateIDs(span *v1.Span) error {
	var traceID trace.TraceID
	copy(traceID[:], span.GetTraceId())
	if !traceID.IsValid() {
		return fmt.Errorf("trace id: %w", ErrZeroID)
	}
	var spanID trace.SpanID
	copy(spanID[:], span.GetSpanId())
	if !spanID.IsValid() {
		return fmt.Errorf("span id: %w", ErrZeroID)
	}
	return nil
}

// getParentSpanID returns "" for a root span. OTLP exporters may send an all-zero parent
// instead of leaving it empty, which also marks a root.
func getParentSpanID(span *v1.Span) (string, error) {
	parentSpanID, err := HexID(span.GetParentSpanId(), spanIDWidth)
	if err != nil {
		return "", fmt.Errorf("invalid parent span id: %w", err)
	}
	if parentSpanID == "" {
		return "", nil
	}
	var parentID trace.SpanID
	copy(parentID[:], span.GetParentSpanId())
	if !parentID.IsValid() {
		return "", nil
	}
	return parentSpanID, nil
}

// IsErrorStatus reports whether the span status is the canonical error code. A missing status is not an error.
func IsErrorStatus(status *v1.Status) bool {
	if status == nil {
		return false
	}
	return status.GetCode() == v1.Status_STATUS_CODE_ERROR
}

func getResourceAttributes(resourceSpan *v1.ResourceSpans) map[string]string {
	attributes := make(map[string]string)
	for _, attr := range resourceSpan.GetResource().GetAttributes() {
		attributes[attr.GetKey()] = anyValueToString(attr.GetValue())
	}
	return attributes
}

func getLogs(span *v1.Span) []model.LogEntry {
	if len(span.GetEvents()) == 0 {
		return nil
	}
	logs := make([]model.LogEntry, len(span.GetEvents()))
	for i, event := range span.GetEvents() {
		logs[i] = model.LogEntry{
			Timestamp: int64(event.GetTimeUnixNano()),
			Text:      eventText(event),
		}
	}
	return logs
}

// eventText renders a span event as its name followed by its attributes sorted by key.
func eventText(event *v1.Span_Event) string {
	if len(event.GetAttributes()) == 0 {
		return event.GetName()
	}
	pairs := make([]string, 0, len(event.GetAttributes()))
	for _, attr := range event.GetAttributes() {
		pairs = append(pairs, attr.GetKey()+"="+anyValueToString(attr.GetValue()))
	}
	slices.Sort(pairs)
	return event.GetName() + " {" + strings.Join(pairs, ", ") + "}"
}

func anyValueToString(value *commonv1.AnyValue) string {
	switch v := value.GetValue().(type) {
	case *commonv1.AnyValue_StringValue:
		return v.StringValue
	case *commonv1.AnyValue_BoolValue:
		return strconv.FormatBool(v.BoolValue)
	case *commonv1.AnyValue_IntValue:
		return strconv.FormatInt(v.IntValue, 10)
	case *commonv1.AnyValue_DoubleValue:
		return strconv.FormatFloat(v.DoubleValue, 'g', -1, 64)
	case *commonv1.AnyValue_BytesValue:
		return hex.EncodeToString(v.BytesValue)
	case *commonv1.AnyValue_ArrayValue:
		values := make([]string, len(v.ArrayValue.GetValues()))
		for i, elem := range v.ArrayValue.GetValues() {
			values[i] = anyValueToString(elem)
		}
		return "[" + strings.Join(values, ", ") + "]"
	case *commonv1.AnyValue_KvlistValue:
		pairs := make([]string, len(v.KvlistValue.GetValues()))
		for i, kv := range v.KvlistValue.GetValues() {
			pairs[i] = kv.GetKey() + "=" + anyValueToString(kv.GetValue())
		}
		return "{" + strings.Join(pairs, ", ") + "}"
	default:
		return ""
	}
}

var (
	ErrInvalidIDWidth = errors.New("identifier has an unexpected width")
	ErrZeroID         = errors.New("identifier is all zeros")
)
