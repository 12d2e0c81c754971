package store

import (
	"context"
	"database/sql"

	"github.com/nextlevelbuilder/beaconobs/internal/aggregate"
)

// IngestSpan is the transactional core of the Intake/Aggregator pair: it
// upserts one span row and recomputes the owning trace's aggregates and
// derived status from the full set of sibling spans, not by incrementing
// counters. Recomputing from scratch on every write (the same approach the
// teacher's BatchUpdateTraceAggregates takes) is what keeps a second write
// of the same span_id (the in-flight -> complete rewrite every span goes
// through) from double-counting: the span table only ever holds one row per
// span_id, so COUNT/SUM over it is correct regardless of how many times
// that row was written.
func (s *SQLiteStore) IngestSpan(ctx context.Context, sp *Span) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if sp.CreatedAt == 0 {
		sp.CreatedAt = nowUnix()
	}

	var existed bool
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM spans WHERE span_id = ?`, sp.SpanID).Scan(new(int)); err == nil {
		existed = true
	} else if err != sql.ErrNoRows {
		return false, err
	}

	if err := ensureTraceExists(ctx, tx, sp); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO spans (span_id, trace_id, parent_span_id, span_type, name, status, error_message,
			start_time, end_time, attributes, annotations, sdk_language, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(span_id) DO UPDATE SET
			trace_id=excluded.trace_id, parent_span_id=excluded.parent_span_id,
			span_type=excluded.span_type, name=excluded.name, status=excluded.status,
			error_message=excluded.error_message, start_time=excluded.start_time,
			end_time=excluded.end_time, attributes=excluded.attributes,
			sdk_language=excluded.sdk_language`,
		sp.SpanID, sp.TraceID, nilStr(sp.ParentSpanID), sp.SpanType, sp.Name, sp.Status, nilStr(sp.ErrorMessage),
		sp.StartTime, nilFloat(sp.EndTime), jsonOrEmpty(sp.Attributes, "{}"), jsonOrEmpty(sp.Annotations, "[]"),
		nilStr(sp.SDKLanguage), sp.CreatedAt,
	); err != nil {
		return false, err
	}

	if err := recomputeTraceAggregates(ctx, tx, sp.TraceID); err != nil {
		return false, err
	}

	return !existed, tx.Commit()
}

func ensureTraceExists(ctx context.Context, tx *sql.Tx, sp *Span) error {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM traces WHERE trace_id = ?`, sp.TraceID).Scan(&exists)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO traces (trace_id, name, start_time, end_time, span_count, status, tags,
			total_cost_usd, total_tokens, sdk_language, created_at)
		VALUES (?, ?, ?, NULL, 0, ?, '{}', 0, 0, ?, ?)`,
		sp.TraceID, sp.Name, sp.StartTime, StatusUnset, nilStr(sp.SDKLanguage), nowUnix())
	return err
}

// recomputeTraceAggregates recomputes span_count, start_time/end_time,
// name, total_cost_usd, total_tokens and status for one trace from its
// current spans. start_time widens to min(child.start_time) and end_time
// to max(child.end_time) (nulls excluded), and name is rewritten from
// whichever root span (parent_span_id IS NULL) was inserted most recently,
// matching spec's "set name if this span is a root" / Invariant 3.
func recomputeTraceAggregates(ctx context.Context, tx *sql.Tx, traceID string) error {
	var spanCount int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM spans WHERE trace_id = ?`, traceID).Scan(&spanCount); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `SELECT status, attributes, span_type, start_time, end_time FROM spans WHERE trace_id = ?`, traceID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var totalCost float64
	var totalTokens int
	var minStart *float64
	var maxEnd *float64
	statuses := map[string]bool{}

	for rows.Next() {
		var status, spanType string
		var attrsRaw []byte
		var startTime float64
		var endTime *float64
		if err := rows.Scan(&status, &attrsRaw, &spanType, &startTime, &endTime); err != nil {
			return err
		}
		statuses[status] = true
		if minStart == nil || startTime < *minStart {
			minStart = &startTime
		}
		if endTime != nil && (maxEnd == nil || *endTime > *maxEnd) {
			maxEnd = endTime
		}
		usage := aggregate.ExtractUsage(spanType, attrsRaw)
		totalCost += usage.CostUSD
		totalTokens += usage.TotalTokens
	}
	if err := rows.Err(); err != nil {
		return err
	}

	status := aggregate.DeriveStatus(statuses)

	// The most recently created root span (no parent) supplies the trace's
	// name, so a root span inserted later takes precedence over the name set
	// at trace creation. An upsert keeps a span's original created_at, so
	// rewriting an existing root does not move it ahead of a newer one.
	var rootName sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT name FROM spans WHERE trace_id = ? AND parent_span_id IS NULL ORDER BY created_at DESC LIMIT 1`,
		traceID).Scan(&rootName)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	if rootName.Valid {
		_, err = tx.ExecContext(ctx,
			`UPDATE traces SET span_count = ?, start_time = ?, total_cost_usd = ?, total_tokens = ?, status = ?, end_time = ?, name = ? WHERE trace_id = ?`,
			spanCount, minStart, totalCost, totalTokens, status, maxEnd, rootName.String, traceID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE traces SET span_count = ?, start_time = ?, total_cost_usd = ?, total_tokens = ?, status = ?, end_time = ? WHERE trace_id = ?`,
			spanCount, minStart, totalCost, totalTokens, status, maxEnd, traceID)
	}
	return err
}

// ImportTrace inserts a trace and its spans transactionally, recomputing
// aggregates from the provided spans rather than trusting the envelope's
// declared trace fields (an imported export might have been hand-edited).
func (s *SQLiteStore) ImportTrace(ctx context.Context, t *Trace, spans []*Span) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM traces WHERE trace_id = ?`, t.TraceID).Scan(&exists)
	if err == nil {
		return &ErrConflict{Msg: "trace " + t.TraceID + " already exists"}
	}
	if err != sql.ErrNoRows {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO traces (trace_id, name, start_time, end_time, span_count, status, tags,
			total_cost_usd, total_tokens, sdk_language, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, 0, 0, ?, ?)`,
		t.TraceID, t.Name, t.StartTime, nilFloat(t.EndTime), t.Status, jsonOrEmpty(t.Tags, "{}"),
		nilStr(t.SDKLanguage), t.CreatedAt,
	); err != nil {
		return err
	}

	for _, sp := range spans {
		if sp.CreatedAt == 0 {
			sp.CreatedAt = nowUnix()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO spans (span_id, trace_id, parent_span_id, span_type, name, status, error_message,
				start_time, end_time, attributes, annotations, sdk_language, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sp.SpanID, t.TraceID, nilStr(sp.ParentSpanID), sp.SpanType, sp.Name, sp.Status, nilStr(sp.ErrorMessage),
			sp.StartTime, nilFloat(sp.EndTime), jsonOrEmpty(sp.Attributes, "{}"), jsonOrEmpty(sp.Annotations, "[]"),
			nilStr(sp.SDKLanguage), sp.CreatedAt,
		); err != nil {
			return err
		}
	}

	if err := recomputeTraceAggregates(ctx, tx, t.TraceID); err != nil {
		return err
	}

	return tx.Commit()
}
