// Package otlp converts between the OTLP/HTTP JSON wire format and
// beaconobs's native store.Span/store.Trace shapes, grounded on the OTLP
// ingest/export logic of the original beacon backend's otlp_service.py and
// export_service.py.
package otlp

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

// ExportTraceServiceRequest is the top-level OTLP/HTTP JSON envelope.
type ExportTraceServiceRequest struct {
	ResourceSpans []ResourceSpans `json:"resourceSpans"`
}

type ResourceSpans struct {
	Resource   *Resource    `json:"resource,omitempty"`
	ScopeSpans []ScopeSpans `json:"scopeSpans"`
}

type Resource struct {
	Attributes []KeyValue `json:"attributes,omitempty"`
}

type ScopeSpans struct {
	Scope *InstrumentationScope `json:"scope,omitempty"`
	Spans []OTLPSpan            `json:"spans"`
}

type InstrumentationScope struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

type OTLPSpan struct {
	TraceID           string     `json:"traceId"`
	SpanID            string     `json:"spanId"`
	ParentSpanID      string     `json:"parentSpanId,omitempty"`
	Name              string     `json:"name"`
	StartTimeUnixNano string     `json:"startTimeUnixNano"`
	EndTimeUnixNano   string     `json:"endTimeUnixNano,omitempty"`
	Attributes        []KeyValue `json:"attributes,omitempty"`
	Status            *Status    `json:"status,omitempty"`
}

type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// OTEL status codes (OTLP proto Status.StatusCode).
const (
	OTELStatusUnset = 0
	OTELStatusOK    = 1
	OTELStatusError = 2
)

type KeyValue struct {
	Key   string     `json:"key"`
	Value AnyValue   `json:"value"`
}

// AnyValue is OTLP's typed attribute value wrapper. Only one field is set.
type AnyValue struct {
	StringValue *string     `json:"stringValue,omitempty"`
	IntValue    *string     `json:"intValue,omitempty"` // OTLP encodes int64 as a JSON string
	DoubleValue *float64    `json:"doubleValue,omitempty"`
	BoolValue   *bool       `json:"boolValue,omitempty"`
	ArrayValue  *ArrayValue `json:"arrayValue,omitempty"`
}

type ArrayValue struct {
	Values []AnyValue `json:"values,omitempty"`
}

var otelStatusToNative = map[int]string{
	OTELStatusUnset: store.StatusUnset,
	OTELStatusOK:    store.StatusOK,
	OTELStatusError: store.StatusError,
}

var nativeStatusToOTEL = map[string]int{
	store.StatusUnset: OTELStatusUnset,
	store.StatusOK:    OTELStatusOK,
	store.StatusError: OTELStatusError,
}

// ConvertToSpans flattens an OTLP export request into native spans, one per
// OTLP span, preserving resource attributes by merging them under the
// span's own attributes (span attributes win on key collision). Scope
// attributes are not read.
func ConvertToSpans(req *ExportTraceServiceRequest) ([]*store.Span, error) {
	var out []*store.Span
	for _, rs := range req.ResourceSpans {
		resourceAttrs := map[string]any{}
		if rs.Resource != nil {
			flattenInto(resourceAttrs, rs.Resource.Attributes)
		}
		for _, ss := range rs.ScopeSpans {
			for _, osp := range ss.Spans {
				sp, err := convertSpan(osp, resourceAttrs)
				if err != nil {
					return nil, err
				}
				out = append(out, sp)
			}
		}
	}
	return out, nil
}

func convertSpan(osp OTLPSpan, resourceAttrs map[string]any) (*store.Span, error) {
	attrs := map[string]any{}
	for k, v := range resourceAttrs {
		attrs[k] = v
	}
	flattenInto(attrs, osp.Attributes)

	startNanos, err := strconv.ParseInt(osp.StartTimeUnixNano, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("span %s: invalid startTimeUnixNano: %w", osp.SpanID, err)
	}

	sp := &store.Span{
		SpanID:    osp.SpanID,
		TraceID:   osp.TraceID,
		Name:      osp.Name,
		SpanType:  spanTypeFromAttrs(attrs),
		StartTime: float64(startNanos) / 1e9,
		Status:    store.StatusUnset,
	}
	// span_type is carried in the span's own column, not its attributes map.
	delete(attrs, store.AttrSpanType)
	if osp.ParentSpanID != "" {
		p := osp.ParentSpanID
		sp.ParentSpanID = &p
	}
	if osp.EndTimeUnixNano != "" {
		endNanos, err := strconv.ParseInt(osp.EndTimeUnixNano, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("span %s: invalid endTimeUnixNano: %w", osp.SpanID, err)
		}
		end := float64(endNanos) / 1e9
		sp.EndTime = &end
	}
	if osp.Status != nil {
		if s, ok := otelStatusToNative[osp.Status.Code]; ok {
			sp.Status = s
		}
		if osp.Status.Message != "" {
			msg := osp.Status.Message
			sp.ErrorMessage = &msg
		}
	}

	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	sp.Attributes = b
	sp.Annotations = json.RawMessage("[]")
	return sp, nil
}

// spanTypeFromAttrs guesses a beaconobs span_type from OTEL GenAI-style
// attributes when the producer didn't set one explicitly, so OTLP producers
// that never heard of beaconobs still get usable aggregates. The result is
// always normalized against the closed span_type enum, so a producer-set
// value outside that enum becomes "custom" rather than passing through.
func spanTypeFromAttrs(attrs map[string]any) string {
	if v, ok := attrs[store.AttrSpanType]; ok {
		if s, ok := v.(string); ok {
			return store.NormalizeSpanType(s)
		}
	}
	if _, ok := attrs[store.AttrLLMModel]; ok {
		return store.SpanTypeLLMCall
	}
	if _, ok := attrs[store.AttrToolName]; ok {
		return store.SpanTypeToolUse
	}
	return store.SpanTypeCustom
}

func flattenInto(dst map[string]any, kvs []KeyValue) {
	for _, kv := range kvs {
		dst[kv.Key] = extractValue(kv.Value)
	}
}

func extractValue(v AnyValue) any {
	switch {
	case v.StringValue != nil:
		return *v.StringValue
	case v.IntValue != nil:
		if n, err := strconv.ParseInt(*v.IntValue, 10, 64); err == nil {
			return n
		}
		return *v.IntValue
	case v.DoubleValue != nil:
		return *v.DoubleValue
	case v.BoolValue != nil:
		return *v.BoolValue
	case v.ArrayValue != nil:
		arr := make([]any, len(v.ArrayValue.Values))
		for i, e := range v.ArrayValue.Values {
			arr[i] = extractValue(e)
		}
		return arr
	default:
		return nil
	}
}

// ExportSpan converts one native span back into OTLP JSON shape — the exact
// reverse of convertSpan, used by the OTEL export format.
func ExportSpan(sp *store.Span) (OTLPSpan, error) {
	osp := OTLPSpan{
		TraceID:           sp.TraceID,
		SpanID:            sp.SpanID,
		Name:              sp.Name,
		StartTimeUnixNano: strconv.FormatInt(int64(sp.StartTime*1e9), 10),
		Status: &Status{
			Code: nativeStatusToOTEL[sp.Status],
		},
	}
	if sp.ParentSpanID != nil {
		osp.ParentSpanID = *sp.ParentSpanID
	}
	if sp.EndTime != nil {
		osp.EndTimeUnixNano = strconv.FormatInt(int64(*sp.EndTime*1e9), 10)
	}
	if sp.ErrorMessage != nil {
		osp.Status.Message = *sp.ErrorMessage
	}

	var attrs map[string]any
	if len(sp.Attributes) > 0 {
		if err := json.Unmarshal(sp.Attributes, &attrs); err != nil {
			return osp, err
		}
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	// convertSpan lifts span_type out of the attributes into its own column;
	// put it back so re-ingesting the export recovers the same span_type.
	attrs[store.AttrSpanType] = sp.SpanType
	for k, v := range attrs {
		osp.Attributes = append(osp.Attributes, KeyValue{Key: k, Value: toAnyValue(v)})
	}
	return osp, nil
}

func toAnyValue(v any) AnyValue {
	switch val := v.(type) {
	case string:
		return AnyValue{StringValue: &val}
	case bool:
		return AnyValue{BoolValue: &val}
	case float64:
		if val == float64(int64(val)) {
			s := strconv.FormatInt(int64(val), 10)
			return AnyValue{IntValue: &s}
		}
		return AnyValue{DoubleValue: &val}
	case []any:
		values := make([]AnyValue, len(val))
		for i, e := range val {
			values[i] = toAnyValue(e)
		}
		return AnyValue{ArrayValue: &ArrayValue{Values: values}}
	default:
		s := fmt.Sprintf("%v", val)
		return AnyValue{StringValue: &s}
	}
}
