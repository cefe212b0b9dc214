// Package sqlstorage persists targets, runs and records in MySQL or SQLite.
package sqlstorage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dreamerjackson/leadcrawler/fetcher"
	"github.com/dreamerjackson/leadcrawler/generator"
	"github.com/dreamerjackson/leadcrawler/spider"
	"github.com/dreamerjackson/leadcrawler/sqldb"
	"go.uber.org/zap"
)

type SQLStorage struct {
	db *sqldb.Sqldb
	options
}

var _ spider.Store = (*SQLStorage)(nil)

func New(opts ...Option) (*SQLStorage, error) {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	s := &SQLStorage{}
	s.options = options

	if s.ids == nil {
		sf, err := generator.NewSnowflake(generator.NodeID(""))
		if err != nil {
			return nil, err
		}
		s.ids = sf
	}

	var err error
	s.db, err = sqldb.New(
		sqldb.WithConnURL(s.sqlURL),
		sqldb.WithDialect(s.dialect),
		sqldb.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		if err := s.db.CreateTable(t); err != nil {
			s.db.Close()
			return nil, err
		}
	}

	return s, nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func (s *SQLStorage) SaveTarget(ctx context.Context, t *spider.Target) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, err
	}
	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return false, err
	}

	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	now := time.Now()
	var (
		id        int64
		createdAt int64
		created   bool
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM `+targetTable+` WHERE name = ?`, t.Name).Scan(&id, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
		id = t.ID
		if id == 0 {
			id = s.ids.NextID()
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO `+targetTable+
			` (id, name, start_url, fetch_mode, enabled, run_every_minutes, extraction_config, last_run_at, created_at, updated_at)`+
			` VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, t.Name, t.StartURL, string(t.Mode), t.Enabled, t.IntervalMinutes, string(cfg),
			nullTime(t.LastRunAt), now.UnixNano(), now.UnixNano())
		createdAt = now.UnixNano()
	case err == nil:
		_, err = tx.ExecContext(ctx, `UPDATE `+targetTable+
			` SET start_url = ?, fetch_mode = ?, enabled = ?, run_every_minutes = ?, extraction_config = ?, updated_at = ?`+
			` WHERE id = ?`,
			t.StartURL, string(t.Mode), t.Enabled, t.IntervalMinutes, string(cfg), now.UnixNano(), id)
	}
	if err != nil {
		return false, fmt.Errorf("save target %q: %w", t.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}

	t.ID = id
	t.CreatedAt = time.Unix(0, createdAt)
	t.UpdatedAt = time.Unix(0, now.UnixNano())
	s.logger.Debug("target saved", zap.String("name", t.Name), zap.Int64("id", id), zap.Bool("created", created))

	return created, nil
}

const targetColumns = `id, name, start_url, fetch_mode, enabled, run_every_minutes, extraction_config, last_run_at, created_at, updated_at`

func (s *SQLStorage) GetTarget(ctx context.Context, id int64) (*spider.Target, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT `+targetColumns+` FROM `+targetTable+` WHERE id = ?`, id)
	return scanTarget(row)
}

func (s *SQLStorage) GetTargetByName(ctx context.Context, name string) (*spider.Target, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT `+targetColumns+` FROM `+targetTable+` WHERE name = ?`, name)
	return scanTarget(row)
}

func (s *SQLStorage) ListTargets(ctx context.Context, enabledOnly bool) ([]*spider.Target, error) {
	q := `SELECT ` + targetColumns + ` FROM ` + targetTable
	var args []interface{}
	if enabledOnly {
		q += ` WHERE enabled = ?`
		args = append(args, true)
	}
	q += ` ORDER BY name`

	rows, err := s.db.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*spider.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStorage) MarkRun(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.DB().ExecContext(ctx,
		`UPDATE `+targetTable+` SET last_run_at = ?, updated_at = ? WHERE id = ?`,
		at.UnixNano(), time.Now().UnixNano(), id)
	if err != nil {
		return err
	}
	return s.affected(ctx, res, targetTable, `id = ?`, id)
}

func (s *SQLStorage) SetEnabled(ctx context.Context, name string, enabled bool) error {
	res, err := s.db.DB().ExecContext(ctx,
		`UPDATE `+targetTable+` SET enabled = ?, updated_at = ? WHERE name = ?`,
		enabled, time.Now().UnixNano(), name)
	if err != nil {
		return err
	}
	return s.affected(ctx, res, targetTable, `name = ?`, name)
}

func (s *SQLStorage) CreateRun(ctx context.Context, r *spider.RunRecord) error {
	if r.ID == 0 {
		r.ID = s.ids.NextID()
	}
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return err
	}
	err = s.db.Insert(ctx, sqldb.TableData{
		TableName:   runTable,
		ColumnNames: runFields,
		Args: []interface{}{
			r.ID, r.TargetID, string(r.Trigger), string(r.Status), nullTime(r.StartedAt), nullTime(r.FinishedAt),
			r.ItemCount, r.CreatedCount, r.UpdatedCount, r.ForwardedCount, r.ErrorKind, r.ErrorMessage,
			string(stats), r.CreatedAt.UnixNano(),
		},
		DataCount: 1,
	})
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *SQLStorage) UpdateRun(ctx context.Context, r *spider.RunRecord) error {
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return err
	}
	res, err := s.db.DB().ExecContext(ctx, `UPDATE `+runTable+
		` SET status = ?, started_at = ?, finished_at = ?, item_count = ?, created_count = ?, updated_count = ?,`+
		` forwarded_count = ?, error_kind = ?, error_message = ?, stats = ? WHERE id = ?`,
		string(r.Status), nullTime(r.StartedAt), nullTime(r.FinishedAt), r.ItemCount, r.CreatedCount,
		r.UpdatedCount, r.ForwardedCount, r.ErrorKind, r.ErrorMessage, string(stats), r.ID)
	if err != nil {
		return fmt.Errorf("update run %d: %w", r.ID, err)
	}
	return s.affected(ctx, res, runTable, `id = ?`, r.ID)
}

const runColumns = `id, target_id, trigger_reason, status, started_at, finished_at, item_count, created_count,` +
	` updated_count, forwarded_count, error_kind, error_message, stats, created_at`

func (s *SQLStorage) GetRun(ctx context.Context, id int64) (*spider.RunRecord, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT `+runColumns+` FROM `+runTable+` WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns the newest runs first. A zero targetID lists every target.
func (s *SQLStorage) ListRuns(ctx context.Context, targetID int64, limit int) ([]*spider.RunRecord, error) {
	q := `SELECT ` + runColumns + ` FROM ` + runTable
	var args []interface{}
	if targetID != 0 {
		q += ` WHERE target_id = ?`
		args = append(args, targetID)
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*spider.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStorage) UpsertRecord(ctx context.Context, r *spider.Record) (*spider.Record, bool, error) {
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return nil, false, err
	}
	raw, err := json.Marshal(r.RawPayload)
	if err != nil {
		return nil, false, err
	}

	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	var (
		id      int64
		created bool
	)
	err = tx.QueryRowContext(ctx, `SELECT id FROM `+recordTable+` WHERE target_id = ? AND record_key = ?`,
		r.TargetID, r.Key).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
		id = r.ID
		if id == 0 {
			id = s.ids.NextID()
		}
		detail, derr := json.Marshal(nonNil(r.Detail))
		if derr != nil {
			return nil, false, derr
		}
		state := r.EnrichState
		if state == "" {
			state = spider.Undetailed
		}
		// a concurrent insert of the same key turns into an update
		_, err = tx.ExecContext(ctx, `INSERT INTO `+recordTable+
			` (id, target_id, record_key, source_url, field_values, detail_values, raw_payload, payload_hash,`+
			` enrich_state, enrich_error, enriched_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`+
			s.db.UpsertClause(
				[]string{"target_id", "record_key"},
				[]string{"source_url", "field_values", "raw_payload", "payload_hash", "updated_at"}),
			id, r.TargetID, r.Key, r.SourceURL, string(fields), string(detail), string(raw), r.PayloadHash,
			string(state), r.EnrichError, nullTime(r.EnrichedAt), now, now)
	case err == nil:
		_, err = tx.ExecContext(ctx, `UPDATE `+recordTable+
			` SET source_url = ?, field_values = ?, raw_payload = ?, payload_hash = ?, updated_at = ? WHERE id = ?`,
			r.SourceURL, string(fields), string(raw), r.PayloadHash, now, id)
	}
	if err != nil {
		return nil, false, fmt.Errorf("upsert record %q: %w", r.Key, err)
	}

	stored, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM `+recordTable+` WHERE target_id = ? AND record_key = ?`, r.TargetID, r.Key))
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	return stored, created, nil
}

const recordColumns = `id, target_id, record_key, source_url, field_values, detail_values, raw_payload, payload_hash,` +
	` enrich_state, enrich_error, enriched_at, created_at, updated_at`

func (s *SQLStorage) GetRecord(ctx context.Context, id int64) (*spider.Record, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT `+recordColumns+` FROM `+recordTable+` WHERE id = ?`, id)
	return scanRecord(row)
}

func (s *SQLStorage) ListUndetailed(ctx context.Context, f spider.RecordFilter) ([]*spider.Record, error) {
	q := `SELECT ` + recordColumns + ` FROM ` + recordTable + ` WHERE source_url <> '' AND enrich_state IN (?`
	args := []interface{}{string(spider.Undetailed)}
	if f.IncludeFailed {
		q += `, ?`
		args = append(args, string(spider.EnrichFailed))
	}
	q += `)`
	if len(f.TargetIDs) > 0 {
		q += ` AND target_id IN (` + strings.Repeat(",?", len(f.TargetIDs))[1:] + `)`
		for _, id := range f.TargetIDs {
			args = append(args, id)
		}
	}
	q += ` ORDER BY created_at, id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*spider.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStorage) SaveEnrichment(ctx context.Context, r *spider.Record) error {
	detail, err := json.Marshal(nonNil(r.Detail))
	if err != nil {
		return err
	}
	res, err := s.db.DB().ExecContext(ctx, `UPDATE `+recordTable+
		` SET detail_values = ?, enrich_state = ?, enrich_error = ?, enriched_at = ?, updated_at = ? WHERE id = ?`,
		string(detail), string(r.EnrichState), r.EnrichError, nullTime(r.EnrichedAt), time.Now().UnixNano(), r.ID)
	if err != nil {
		return fmt.Errorf("save enrichment %d: %w", r.ID, err)
	}
	return s.affected(ctx, res, recordTable, `id = ?`, r.ID)
}

// affected maps an update that touched no row to spider.ErrNotFound. MySQL
// reports changed rows rather than matched ones, so a zero count is checked
// against the table before failing.
func (s *SQLStorage) affected(ctx context.Context, res sql.Result, table, where string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return err
	}
	var one int
	err = s.db.DB().QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE `+where, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return spider.ErrNotFound
	}
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTarget(row scanner) (*spider.Target, error) {
	var (
		t         spider.Target
		mode, cfg string
		lastRun   sql.NullInt64
		created   int64
		updated   int64
	)
	err := row.Scan(&t.ID, &t.Name, &t.StartURL, &mode, &t.Enabled, &t.IntervalMinutes, &cfg,
		&lastRun, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, spider.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Mode = fetcher.Mode(mode)
	if err := json.Unmarshal([]byte(cfg), &t.Config); err != nil {
		return nil, fmt.Errorf("target %q config: %w", t.Name, err)
	}
	t.LastRunAt = timePtr(lastRun)
	t.CreatedAt = time.Unix(0, created)
	t.UpdatedAt = time.Unix(0, updated)
	return &t, nil
}

func scanRun(row scanner) (*spider.RunRecord, error) {
	var (
		r                 spider.RunRecord
		trigger, status   string
		started, finished sql.NullInt64
		stats             string
		created           int64
	)
	err := row.Scan(&r.ID, &r.TargetID, &trigger, &status, &started, &finished, &r.ItemCount, &r.CreatedCount,
		&r.UpdatedCount, &r.ForwardedCount, &r.ErrorKind, &r.ErrorMessage, &stats, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, spider.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Trigger = spider.Trigger(trigger)
	r.Status = spider.RunStatus(status)
	r.StartedAt = timePtr(started)
	r.FinishedAt = timePtr(finished)
	r.CreatedAt = time.Unix(0, created)
	if err := json.Unmarshal([]byte(stats), &r.Stats); err != nil {
		return nil, fmt.Errorf("run %d stats: %w", r.ID, err)
	}
	return &r, nil
}

func scanRecord(row scanner) (*spider.Record, error) {
	var (
		r                   spider.Record
		fields, detail, raw string
		state               string
		enriched            sql.NullInt64
		created, updated    int64
	)
	err := row.Scan(&r.ID, &r.TargetID, &r.Key, &r.SourceURL, &fields, &detail, &raw, &r.PayloadHash,
		&state, &r.EnrichError, &enriched, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, spider.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, c := range []struct {
		src string
		dst *map[string]string
	}{{fields, &r.Fields}, {detail, &r.Detail}, {raw, &r.RawPayload}} {
		if err := json.Unmarshal([]byte(c.src), c.dst); err != nil {
			return nil, fmt.Errorf("record %d: %w", r.ID, err)
		}
	}
	r.EnrichState = spider.EnrichState(state)
	r.EnrichedAt = timePtr(enriched)
	r.CreatedAt = time.Unix(0, created)
	r.UpdatedAt = time.Unix(0, updated)
	return &r, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64)
	return &t
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
