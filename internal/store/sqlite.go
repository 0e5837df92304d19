package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/placefeed/curator/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS ingest_records (
	id               TEXT PRIMARY KEY,
	stage            TEXT NOT NULL DEFAULT 'new',
	source_type      TEXT NOT NULL,
	target_type      TEXT NOT NULL,
	raw_data         TEXT NOT NULL,
	derived          TEXT NOT NULL DEFAULT '{}',
	failure          TEXT,
	linked_entity_id TEXT,
	source_dedup_key TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS content_entities (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	title        TEXT NOT NULL,
	slug         TEXT NOT NULL,
	body         TEXT NOT NULL DEFAULT '',
	population   INTEGER NOT NULL DEFAULT 0,
	rating       REAL NOT NULL DEFAULT 0,
	score        INTEGER NOT NULL DEFAULT 0,
	published_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_records_stage ON ingest_records(stage);
CREATE INDEX IF NOT EXISTS idx_records_created_at ON ingest_records(created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_records_dedup_key
	ON ingest_records(source_dedup_key) WHERE source_dedup_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_entities_type ON content_entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_slug ON content_entities(slug);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const recordColumns = `id, stage, source_type, target_type, raw_data, derived, failure, linked_entity_id, source_dedup_key, created_at, updated_at`

func (s *SQLiteStore) CreateRecord(ctx context.Context, rec model.IngestRecord) (*model.IngestRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Stage == "" {
		rec.Stage = model.StageNew
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	rawJSON, err := json.Marshal(rec.RawData)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal raw data")
	}
	derivedJSON, err := json.Marshal(rec.Derived)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal derived")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingest_records (id, stage, source_type, target_type, raw_data, derived, linked_entity_id, source_dedup_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Stage), string(rec.SourceType), string(rec.TargetType),
		string(rawJSON), string(derivedJSON),
		nullString(rec.LinkedEntityID), nullString(rec.SourceDedupKey),
		now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert record %s", rec.ID)
	}
	return &rec, nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.IngestRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM ingest_records WHERE id = ?`, id)
	return scanRecord(row)
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.IngestRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM ingest_records WHERE 1=1`
	var args []any

	if len(filter.Stages) > 0 {
		placeholders := make([]string, len(filter.Stages))
		for i, st := range filter.Stages {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND stage IN (` + strings.Join(placeholders, ", ") + `)`
	}
	if filter.SourceType != "" {
		query += ` AND source_type = ?`
		args = append(args, string(filter.SourceType))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var records []model.IngestRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) ListEligible(ctx context.Context, stages []model.Stage, limit int) ([]model.IngestRecord, error) {
	return s.ListRecords(ctx, RecordFilter{Stages: stages, Limit: limit})
}

func (s *SQLiteStore) FindByDedupKey(ctx context.Context, key string) (*model.IngestRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM ingest_records WHERE source_dedup_key = ?`, key)
	return scanRecord(row)
}

func (s *SQLiteStore) ListDedupKeys(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_dedup_key FROM ingest_records WHERE source_dedup_key IS NOT NULL`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dedup keys")
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dedup key")
		}
		keys[k] = true
	}
	return keys, eris.Wrap(rows.Err(), "sqlite: list dedup keys iterate")
}

func (s *SQLiteStore) Advance(ctx context.Context, id string, newStage model.Stage, patch model.DerivedPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin advance")
	}
	defer tx.Rollback() //nolint:errcheck

	var derivedJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT derived FROM ingest_records WHERE id = ?`, id).Scan(&derivedJSON)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: advance read %s", id)
	}

	var derived model.Derived
	if err := json.Unmarshal([]byte(derivedJSON), &derived); err != nil {
		return eris.Wrapf(err, "sqlite: advance unmarshal derived %s", id)
	}
	patch.Apply(&derived)

	merged, err := json.Marshal(derived)
	if err != nil {
		return eris.Wrap(err, "sqlite: advance marshal derived")
	}

	var linked any
	if patch.LinkedEntity != nil {
		linked = *patch.LinkedEntity
	}

	var res sql.Result
	if linked != nil {
		res, err = tx.ExecContext(ctx,
			`UPDATE ingest_records SET stage = ?, derived = ?, failure = NULL, linked_entity_id = ?, updated_at = ? WHERE id = ?`,
			string(newStage), string(merged), linked, time.Now().UTC(), id)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE ingest_records SET stage = ?, derived = ?, failure = NULL, updated_at = ? WHERE id = ?`,
			string(newStage), string(merged), time.Now().UTC(), id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: advance %s", id)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: advance commit")
}

func (s *SQLiteStore) RecordFailure(ctx context.Context, id string, stage model.Stage, message string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin record failure")
	}
	defer tx.Rollback() //nolint:errcheck

	var prevJSON sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT failure FROM ingest_records WHERE id = ?`, id).Scan(&prevJSON)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: record failure read %s", id)
	}

	failure := model.RecordFailure{Stage: stage, Message: message, Count: 1}
	if prevJSON.Valid {
		var prev model.RecordFailure
		if err := json.Unmarshal([]byte(prevJSON.String), &prev); err == nil && prev.Stage == stage {
			failure.Count = prev.Count + 1
		}
	}

	failureJSON, err := json.Marshal(failure)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal failure")
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE ingest_records SET failure = ?, updated_at = ? WHERE id = ?`,
		string(failureJSON), time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record failure %s", id)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: record failure commit")
}

func (s *SQLiteStore) DeleteRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ingest_records WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete record %s", id)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteStore) RetagRecord(ctx context.Context, id string, target model.TargetType) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_records SET target_type = ?, updated_at = ? WHERE id = ?`,
		string(target), time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: retag record %s", id)
	}
	return checkRowsAffected(res)
}

// ResetSoft restarts the pipeline for one record without touching its raw
// data: stage back to new, failure and score and linked entity cleared.
func (s *SQLiteStore) ResetSoft(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin reset")
	}
	defer tx.Rollback() //nolint:errcheck

	var derivedJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT derived FROM ingest_records WHERE id = ?`, id).Scan(&derivedJSON)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: reset read %s", id)
	}

	var derived model.Derived
	if err := json.Unmarshal([]byte(derivedJSON), &derived); err != nil {
		return eris.Wrapf(err, "sqlite: reset unmarshal derived %s", id)
	}
	derived.Score = nil
	derived.ReviewReason = ""

	cleaned, err := json.Marshal(derived)
	if err != nil {
		return eris.Wrap(err, "sqlite: reset marshal derived")
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE ingest_records SET stage = ?, derived = ?, failure = NULL, linked_entity_id = NULL, updated_at = ? WHERE id = ?`,
		string(model.StageNew), string(cleaned), time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reset %s", id)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: reset commit")
}

func (s *SQLiteStore) HardDeleteAll(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ingest_records`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: hard delete all")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CountByStage(ctx context.Context) (model.StageCounts, int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(*) FROM ingest_records GROUP BY stage`)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count by stage")
	}
	defer rows.Close()

	counts := make(model.StageCounts)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, 0, eris.Wrap(err, "sqlite: scan stage count")
		}
		counts[model.Stage(stage)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count by stage iterate")
	}

	var failed int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ingest_records WHERE failure IS NOT NULL`).Scan(&failed)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count failed")
	}
	return counts, failed, nil
}

func (s *SQLiteStore) CreateEntity(ctx context.Context, e model.ContentEntity) (*model.ContentEntity, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.PublishedAt = now
	e.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO content_entities (id, type, title, slug, body, population, rating, score, published_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.Title, e.Slug, e.Body, e.Population, e.Rating, e.Score, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert entity %s", e.ID)
	}
	return &e, nil
}

func (s *SQLiteStore) UpdateEntity(ctx context.Context, e model.ContentEntity) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE content_entities SET title = ?, slug = ?, body = ?, population = ?, rating = ?, score = ?, updated_at = ? WHERE id = ?`,
		e.Title, e.Slug, e.Body, e.Population, e.Rating, e.Score, time.Now().UTC(), e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update entity %s", e.ID)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*model.ContentEntity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, title, slug, body, population, rating, score, published_at, updated_at
		 FROM content_entities WHERE id = ?`, id)
	return scanEntity(row)
}

func (s *SQLiteStore) ListPublishedEntities(ctx context.Context, entityType model.TargetType, limit int) ([]model.ContentEntity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, title, slug, body, population, rating, score, published_at, updated_at
		 FROM content_entities WHERE type = ? ORDER BY published_at ASC LIMIT ?`,
		string(entityType), limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var entities []model.ContentEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

// helpers

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.IngestRecord, error) {
	var r model.IngestRecord
	var stage, sourceType, targetType, rawJSON, derivedJSON string
	var failureJSON, linkedID, dedupKey sql.NullString

	err := row.Scan(&r.ID, &stage, &sourceType, &targetType, &rawJSON, &derivedJSON,
		&failureJSON, &linkedID, &dedupKey, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan record")
	}

	r.Stage = model.Stage(stage)
	r.SourceType = model.SourceType(sourceType)
	r.TargetType = model.TargetType(targetType)

	if err := json.Unmarshal([]byte(rawJSON), &r.RawData); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal raw data")
	}
	if err := json.Unmarshal([]byte(derivedJSON), &r.Derived); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal derived")
	}
	if failureJSON.Valid {
		r.Failure = &model.RecordFailure{}
		if err := json.Unmarshal([]byte(failureJSON.String), r.Failure); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal failure")
		}
	}
	r.LinkedEntityID = linkedID.String
	r.SourceDedupKey = dedupKey.String
	return &r, nil
}

func scanEntity(row scannable) (*model.ContentEntity, error) {
	var e model.ContentEntity
	var entityType string

	err := row.Scan(&e.ID, &entityType, &e.Title, &e.Slug, &e.Body,
		&e.Population, &e.Rating, &e.Score, &e.PublishedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan entity")
	}
	e.Type = model.TargetType(entityType)
	return &e, nil
}

var _ Store = (*SQLiteStore)(nil)
