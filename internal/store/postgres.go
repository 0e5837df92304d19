package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/placefeed/curator/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it,
// which keeps the Postgres store testable without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries prepared on each new connection for the
// hot batch-loop operations.
var preparedStatements = map[string]string{
	"get_record":     `SELECT ` + recordColumns + ` FROM ingest_records WHERE id = $1`,
	"record_failure": `UPDATE ingest_records SET failure = $1, updated_at = $2 WHERE id = $3`,
	"find_dedup":     `SELECT ` + recordColumns + ` FROM ingest_records WHERE source_dedup_key = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS ingest_records (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	stage            TEXT NOT NULL DEFAULT 'new',
	source_type      TEXT NOT NULL,
	target_type      TEXT NOT NULL,
	raw_data         JSONB NOT NULL,
	derived          JSONB NOT NULL DEFAULT '{}',
	failure          JSONB,
	linked_entity_id TEXT,
	source_dedup_key TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS content_entities (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	type         TEXT NOT NULL,
	title        TEXT NOT NULL,
	slug         TEXT NOT NULL,
	body         TEXT NOT NULL DEFAULT '',
	population   INTEGER NOT NULL DEFAULT 0,
	rating       DOUBLE PRECISION NOT NULL DEFAULT 0,
	score        INTEGER NOT NULL DEFAULT 0,
	published_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_stage ON ingest_records(stage);
CREATE INDEX IF NOT EXISTS idx_records_created_at ON ingest_records(created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_records_dedup_key
	ON ingest_records(source_dedup_key) WHERE source_dedup_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_entities_type ON content_entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_slug ON content_entities(slug);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRecord(ctx context.Context, rec model.IngestRecord) (*model.IngestRecord, error) {
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
		return nil, eris.Wrap(err, "postgres: marshal raw data")
	}
	derivedJSON, err := json.Marshal(rec.Derived)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal derived")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ingest_records (id, stage, source_type, target_type, raw_data, derived, linked_entity_id, source_dedup_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, string(rec.Stage), string(rec.SourceType), string(rec.TargetType),
		rawJSON, derivedJSON,
		nullString(rec.LinkedEntityID), nullString(rec.SourceDedupKey),
		now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert record %s", rec.ID)
	}
	return &rec, nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.IngestRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM ingest_records WHERE id = $1`, id)
	return scanPgRecord(row)
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.IngestRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM ingest_records WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if len(filter.Stages) > 0 {
		placeholders := make([]string, len(filter.Stages))
		for i, st := range filter.Stages {
			placeholders[i] = arg(string(st))
		}
		query += ` AND stage IN (` + strings.Join(placeholders, ", ") + `)`
	}
	if filter.SourceType != "" {
		query += ` AND source_type = ` + arg(string(filter.SourceType))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var records []model.IngestRecord
	for rows.Next() {
		r, err := scanPgRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) ListEligible(ctx context.Context, stages []model.Stage, limit int) ([]model.IngestRecord, error) {
	return s.ListRecords(ctx, RecordFilter{Stages: stages, Limit: limit})
}

func (s *PostgresStore) FindByDedupKey(ctx context.Context, key string) (*model.IngestRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM ingest_records WHERE source_dedup_key = $1`, key)
	return scanPgRecord(row)
}

func (s *PostgresStore) ListDedupKeys(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_dedup_key FROM ingest_records WHERE source_dedup_key IS NOT NULL`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dedup keys")
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dedup key")
		}
		keys[k] = true
	}
	return keys, eris.Wrap(rows.Err(), "postgres: list dedup keys iterate")
}

func (s *PostgresStore) Advance(ctx context.Context, id string, newStage model.Stage, patch model.DerivedPatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin advance")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var derivedJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT derived FROM ingest_records WHERE id = $1 FOR UPDATE`, id).Scan(&derivedJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: advance read %s", id)
	}

	var derived model.Derived
	if err := json.Unmarshal(derivedJSON, &derived); err != nil {
		return eris.Wrapf(err, "postgres: advance unmarshal derived %s", id)
	}
	patch.Apply(&derived)

	merged, err := json.Marshal(derived)
	if err != nil {
		return eris.Wrap(err, "postgres: advance marshal derived")
	}

	if patch.LinkedEntity != nil {
		_, err = tx.Exec(ctx,
			`UPDATE ingest_records SET stage = $1, derived = $2, failure = NULL, linked_entity_id = $3, updated_at = $4 WHERE id = $5`,
			string(newStage), merged, *patch.LinkedEntity, time.Now().UTC(), id)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE ingest_records SET stage = $1, derived = $2, failure = NULL, updated_at = $3 WHERE id = $4`,
			string(newStage), merged, time.Now().UTC(), id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: advance %s", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: advance commit")
}

func (s *PostgresStore) RecordFailure(ctx context.Context, id string, stage model.Stage, message string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin record failure")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var prevJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT failure FROM ingest_records WHERE id = $1 FOR UPDATE`, id).Scan(&prevJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: record failure read %s", id)
	}

	failure := model.RecordFailure{Stage: stage, Message: message, Count: 1}
	if len(prevJSON) > 0 {
		var prev model.RecordFailure
		if err := json.Unmarshal(prevJSON, &prev); err == nil && prev.Stage == stage {
			failure.Count = prev.Count + 1
		}
	}

	failureJSON, err := json.Marshal(failure)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal failure")
	}

	_, err = tx.Exec(ctx,
		`UPDATE ingest_records SET failure = $1, updated_at = $2 WHERE id = $3`,
		failureJSON, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: record failure %s", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: record failure commit")
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ingest_records WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete record %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RetagRecord(ctx context.Context, id string, target model.TargetType) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_records SET target_type = $1, updated_at = $2 WHERE id = $3`,
		string(target), time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: retag record %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ResetSoft(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin reset")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var derivedJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT derived FROM ingest_records WHERE id = $1 FOR UPDATE`, id).Scan(&derivedJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: reset read %s", id)
	}

	var derived model.Derived
	if err := json.Unmarshal(derivedJSON, &derived); err != nil {
		return eris.Wrapf(err, "postgres: reset unmarshal derived %s", id)
	}
	derived.Score = nil
	derived.ReviewReason = ""

	cleaned, err := json.Marshal(derived)
	if err != nil {
		return eris.Wrap(err, "postgres: reset marshal derived")
	}

	_, err = tx.Exec(ctx,
		`UPDATE ingest_records SET stage = $1, derived = $2, failure = NULL, linked_entity_id = NULL, updated_at = $3 WHERE id = $4`,
		string(model.StageNew), cleaned, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: reset %s", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: reset commit")
}

func (s *PostgresStore) HardDeleteAll(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ingest_records`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: hard delete all")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountByStage(ctx context.Context) (model.StageCounts, int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stage, COUNT(*) FROM ingest_records GROUP BY stage`)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count by stage")
	}
	defer rows.Close()

	counts := make(model.StageCounts)
	for rows.Next() {
		var stage string
		var n int64
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan stage count")
		}
		counts[model.Stage(stage)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count by stage iterate")
	}

	var failed int64
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ingest_records WHERE failure IS NOT NULL`).Scan(&failed)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count failed")
	}
	return counts, int(failed), nil
}

func (s *PostgresStore) CreateEntity(ctx context.Context, e model.ContentEntity) (*model.ContentEntity, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.PublishedAt = now
	e.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO content_entities (id, type, title, slug, body, population, rating, score, published_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, string(e.Type), e.Title, e.Slug, e.Body, e.Population, e.Rating, e.Score, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert entity %s", e.ID)
	}
	return &e, nil
}

func (s *PostgresStore) UpdateEntity(ctx context.Context, e model.ContentEntity) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE content_entities SET title = $1, slug = $2, body = $3, population = $4, rating = $5, score = $6, updated_at = $7 WHERE id = $8`,
		e.Title, e.Slug, e.Body, e.Population, e.Rating, e.Score, time.Now().UTC(), e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update entity %s", e.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*model.ContentEntity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, type, title, slug, body, population, rating, score, published_at, updated_at
		 FROM content_entities WHERE id = $1`, id)
	return scanPgEntity(row)
}

func (s *PostgresStore) ListPublishedEntities(ctx context.Context, entityType model.TargetType, limit int) ([]model.ContentEntity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, title, slug, body, population, rating, score, published_at, updated_at
		 FROM content_entities WHERE type = $1 ORDER BY published_at ASC LIMIT $2`,
		string(entityType), limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var entities []model.ContentEntity
	for rows.Next() {
		e, err := scanPgEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

// helpers

func scanPgRecord(row pgx.Row) (*model.IngestRecord, error) {
	var r model.IngestRecord
	var stage, sourceType, targetType string
	var rawJSON, derivedJSON, failureJSON []byte
	var linkedID, dedupKey *string

	err := row.Scan(&r.ID, &stage, &sourceType, &targetType, &rawJSON, &derivedJSON,
		&failureJSON, &linkedID, &dedupKey, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan record")
	}

	r.Stage = model.Stage(stage)
	r.SourceType = model.SourceType(sourceType)
	r.TargetType = model.TargetType(targetType)

	if err := json.Unmarshal(rawJSON, &r.RawData); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal raw data")
	}
	if err := json.Unmarshal(derivedJSON, &r.Derived); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal derived")
	}
	if len(failureJSON) > 0 {
		r.Failure = &model.RecordFailure{}
		if err := json.Unmarshal(failureJSON, r.Failure); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal failure")
		}
	}
	if linkedID != nil {
		r.LinkedEntityID = *linkedID
	}
	if dedupKey != nil {
		r.SourceDedupKey = *dedupKey
	}
	return &r, nil
}

func scanPgEntity(row pgx.Row) (*model.ContentEntity, error) {
	var e model.ContentEntity
	var entityType string

	err := row.Scan(&e.ID, &entityType, &e.Title, &e.Slug, &e.Body,
		&e.Population, &e.Rating, &e.Score, &e.PublishedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan entity")
	}
	e.Type = model.TargetType(entityType)
	return &e, nil
}

var _ Store = (*PostgresStore)(nil)
