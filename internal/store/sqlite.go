package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on top of a single embedded sqlite file.
// Writes and hand-scanned reads go through the plain *sql.DB; read-path
// queries that map directly onto a tagged struct (prompt versions, stats)
// go through sqlx so the column list and the Go fields stay in sync.
type SQLiteStore struct {
	db   *sql.DB
	sqlx *sqlx.DB
	path string
}

// Open opens (creating if necessary) the sqlite database at path, enables
// foreign keys, and runs the schema + migration safety net.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The embedded store is single-process; one connection avoids sqlite's
	// "database is locked" errors under concurrent writers and gives us the
	// serialization the concurrency model asks for at the store layer.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, sqlx: sqlx.NewDb(db, "sqlite"), path: path}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// --- null-safe scan/bind helpers, in the teacher's style ---

func nilStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nilFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func jsonOrEmpty(raw json.RawMessage, empty string) string {
	if len(raw) == 0 {
		return empty
	}
	return string(raw)
}

func derefStr(v *string) *string { return v }

func genID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// --- Traces ---

func (s *SQLiteStore) CreateTrace(ctx context.Context, t *Trace) error {
	if t.TraceID == "" {
		t.TraceID = genID("trace")
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = nowUnix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traces (trace_id, name, start_time, end_time, span_count, status, tags,
		 total_cost_usd, total_tokens, sdk_language, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TraceID, t.Name, t.StartTime, nilFloat(t.EndTime), t.SpanCount, t.Status,
		jsonOrEmpty(t.Tags, "{}"), t.TotalCostUSD, t.TotalTokens, nilStr(t.SDKLanguage), t.CreatedAt,
	)
	return err
}

func scanTrace(row interface{ Scan(...any) error }) (*Trace, error) {
	var t Trace
	var endTime *float64
	var sdkLang *string
	var tags []byte
	if err := row.Scan(&t.TraceID, &t.Name, &t.StartTime, &endTime, &t.SpanCount, &t.Status,
		&tags, &t.TotalCostUSD, &t.TotalTokens, &sdkLang, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.EndTime = endTime
	t.SDKLanguage = sdkLang
	if len(tags) > 0 {
		t.Tags = json.RawMessage(tags)
	} else {
		t.Tags = json.RawMessage("{}")
	}
	return &t, nil
}

const traceCols = `trace_id, name, start_time, end_time, span_count, status, tags,
	 total_cost_usd, total_tokens, sdk_language, created_at`

func (s *SQLiteStore) GetTrace(ctx context.Context, traceID string) (*Trace, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+traceCols+` FROM traces WHERE trace_id = ?`, traceID)
	t, err := scanTrace(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Kind: "trace", ID: traceID}
	}
	return t, err
}

func (s *SQLiteStore) ListTraces(ctx context.Context, opts TraceListOpts) ([]*Trace, int, error) {
	where := ""
	var args []any
	if opts.Status != "" {
		where = " WHERE status = ?"
		args = append(args, opts.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM traces"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + traceCols + ` FROM traces` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			slog.Warn("store: trace scan failed", "error", err)
			continue
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) DeleteTrace(ctx context.Context, traceID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM traces WHERE trace_id = ?`, traceID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) DeleteTracesBatch(ctx context.Context, traceIDs []string, olderThan *float64) (int, error) {
	var where string
	var args []any
	switch {
	case len(traceIDs) > 0:
		placeholders := make([]string, len(traceIDs))
		for i, id := range traceIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where = " WHERE trace_id IN (" + strings.Join(placeholders, ",") + ")"
	case olderThan != nil:
		where = " WHERE created_at < ?"
		args = append(args, *olderThan)
	default:
		return 0, fmt.Errorf("provide trace_ids or older_than")
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM traces"+where, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) UpdateTraceTags(ctx context.Context, traceID string, tags map[string]string) (*Trace, error) {
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE traces SET tags = ? WHERE trace_id = ?`, string(b), traceID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &ErrNotFound{Kind: "trace", ID: traceID}
	}
	return s.GetTrace(ctx, traceID)
}

// --- Spans ---

const spanCols = `span_id, trace_id, parent_span_id, span_type, name, status, error_message,
	 start_time, end_time, attributes, annotations, sdk_language, created_at`

func scanSpan(row interface{ Scan(...any) error }) (*Span, error) {
	var s Span
	var parent, errMsg, sdkLang *string
	var endTime *float64
	var attrs, annots []byte
	if err := row.Scan(&s.SpanID, &s.TraceID, &parent, &s.SpanType, &s.Name, &s.Status, &errMsg,
		&s.StartTime, &endTime, &attrs, &annots, &sdkLang, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.ParentSpanID = parent
	s.ErrorMessage = errMsg
	s.EndTime = endTime
	s.SDKLanguage = sdkLang
	if len(attrs) > 0 {
		s.Attributes = json.RawMessage(attrs)
	} else {
		s.Attributes = json.RawMessage("{}")
	}
	if len(annots) > 0 {
		s.Annotations = json.RawMessage(annots)
	} else {
		s.Annotations = json.RawMessage("[]")
	}
	return &s, nil
}

func (s *SQLiteStore) GetSpan(ctx context.Context, spanID string) (*Span, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+spanCols+` FROM spans WHERE span_id = ?`, spanID)
	sp, err := scanSpan(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Kind: "span", ID: spanID}
	}
	return sp, err
}

func (s *SQLiteStore) GetTraceSpans(ctx context.Context, traceID string) ([]*Span, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+spanCols+` FROM spans WHERE trace_id = ? ORDER BY start_time`, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Span
	for rows.Next() {
		sp, err := scanSpan(rows)
		if err != nil {
			slog.Warn("store: span scan failed", "trace_id", traceID, "error", err)
			continue
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateSpanAnnotations(ctx context.Context, spanID string, annotations []string) (*Span, error) {
	b, err := json.Marshal(annotations)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE spans SET annotations = ? WHERE span_id = ?`, string(b), spanID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &ErrNotFound{Kind: "span", ID: spanID}
	}
	return s.GetSpan(ctx, spanID)
}

// --- Replay / prompt versions ---

func (s *SQLiteStore) CreateReplayRun(ctx context.Context, r *ReplayRun) error {
	if r.ReplayID == "" {
		r.ReplayID = genID("replay")
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = nowUnix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO replay_runs (replay_id, original_span_id, trace_id, modified_input, new_output, diff, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ReplayID, r.OriginalSpanID, r.TraceID, r.ModifiedInput, r.NewOutput, r.Diff, r.CreatedAt)
	return err
}

func (s *SQLiteStore) CreatePromptVersion(ctx context.Context, p *PromptVersion) error {
	if p.VersionID == "" {
		p.VersionID = genID("pver")
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = nowUnix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prompt_versions (version_id, span_id, prompt_text, label, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.VersionID, p.SpanID, p.PromptText, nilStr(p.Label), p.CreatedAt)
	return err
}

func (s *SQLiteStore) ListPromptVersions(ctx context.Context, spanID string) ([]*PromptVersion, error) {
	var out []*PromptVersion
	err := s.sqlx.SelectContext(ctx, &out,
		`SELECT version_id, span_id, prompt_text, label, created_at FROM prompt_versions
		 WHERE span_id = ? ORDER BY created_at`, spanID)
	return out, err
}

// --- Stats ---

func (s *SQLiteStore) Stats(ctx context.Context) (*DBStats, error) {
	var st DBStats
	if err := s.sqlx.GetContext(ctx, &st.TraceCount, `SELECT COUNT(*) FROM traces`); err != nil {
		return nil, err
	}
	if err := s.sqlx.GetContext(ctx, &st.SpanCount, `SELECT COUNT(*) FROM spans`); err != nil {
		return nil, err
	}
	var oldest sql.NullFloat64
	if err := s.sqlx.GetContext(ctx, &oldest, `SELECT MIN(created_at) FROM traces`); err != nil {
		return nil, err
	}
	if oldest.Valid {
		st.OldestTraceTime = &oldest.Float64
	}
	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}
	return &st, nil
}
