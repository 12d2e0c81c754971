package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/beaconobs/internal/aggregate"
	"github.com/nextlevelbuilder/beaconobs/internal/otlp"
	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

// Exporter reads traces/spans out of a Store in each supported wire format.
type Exporter struct {
	store store.Store
}

func New(s store.Store) *Exporter {
	return &Exporter{store: s}
}

func (ex *Exporter) TraceEnvelope(ctx context.Context, traceID string) (*Envelope, error) {
	t, err := ex.store.GetTrace(ctx, traceID)
	if err != nil {
		return nil, err
	}
	spans, err := ex.store.GetTraceSpans(ctx, traceID)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Version:    FormatVersion,
		Format:     FormatBeacon,
		ExportedAt: unixNow(),
		Trace:      t,
		Spans:      spans,
	}, nil
}

// BulkEnvelopeFor exports several traces at once. A trace_id that no longer
// exists is skipped rather than failing the whole batch.
func (ex *Exporter) BulkEnvelopeFor(ctx context.Context, traceIDs []string) (*BulkEnvelope, error) {
	bundles := make([]TraceBundle, 0, len(traceIDs))
	for _, id := range traceIDs {
		t, err := ex.store.GetTrace(ctx, id)
		if err != nil {
			continue
		}
		spans, err := ex.store.GetTraceSpans(ctx, id)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, TraceBundle{Trace: t, Spans: spans})
	}
	return &BulkEnvelope{
		Version:    FormatVersion,
		Format:     FormatBeacon,
		ExportedAt: unixNow(),
		Traces:     bundles,
	}, nil
}

// OTLPFor converts one trace's spans into the OTLP/HTTP JSON envelope — the
// exact reverse of the OTLP ingest transformation.
func (ex *Exporter) OTLPFor(ctx context.Context, traceID string) (*otlp.ExportTraceServiceRequest, error) {
	spans, err := ex.store.GetTraceSpans(ctx, traceID)
	if err != nil {
		return nil, err
	}
	otlpSpans := make([]otlp.OTLPSpan, 0, len(spans))
	for _, sp := range spans {
		osp, err := otlp.ExportSpan(sp)
		if err != nil {
			return nil, fmt.Errorf("span %s: %w", sp.SpanID, err)
		}
		otlpSpans = append(otlpSpans, osp)
	}
	return &otlp.ExportTraceServiceRequest{
		ResourceSpans: []otlp.ResourceSpans{
			{
				ScopeSpans: []otlp.ScopeSpans{
					{
						Scope: &otlp.InstrumentationScope{Name: "beaconobs"},
						Spans: otlpSpans,
					},
				},
			},
		},
	}, nil
}

var csvColumns = []string{
	"trace_id", "span_id", "parent_span_id", "name", "span_type",
	"start_time", "end_time", "duration_ms", "status", "cost", "tokens",
}

// CSVFor writes one row per span with a fixed column order.
func (ex *Exporter) CSVFor(ctx context.Context, traceID string) ([]byte, error) {
	spans, err := ex.store.GetTraceSpans(ctx, traceID)
	if err != nil {
		return nil, err
	}

	var buf strings.Builder
	w := csv.NewWriter(&buf)
	if err := w.Write(csvColumns); err != nil {
		return nil, err
	}
	for _, sp := range spans {
		cost, tokens := spanCostAndTokens(sp)
		row := []string{
			sp.TraceID,
			sp.SpanID,
			derefOr(sp.ParentSpanID, ""),
			sp.Name,
			sp.SpanType,
			formatFloat(sp.StartTime),
			formatFloatPtr(sp.EndTime),
			formatFloatPtr(sp.DurationMS()),
			sp.Status,
			formatFloat(cost),
			strconv.Itoa(tokens),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func spanCostAndTokens(sp *store.Span) (cost float64, tokens int) {
	usage := aggregate.ExtractUsage(sp.SpanType, sp.Attributes)
	return usage.CostUSD, usage.TotalTokens
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatFloatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
