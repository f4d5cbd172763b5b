package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/mdo/internal/postgres"
	"github.com/JonMunkholm/mdo/internal/runapi"
	"github.com/JonMunkholm/mdo/internal/validation"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores runs in the runs table created by
// postgres.Migrate. Files, mappings and issues are JSONB columns.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectRun = `SELECT id, status, files, mapping, validation_issues, error, created_at, completed_at FROM runs`

func (r *PostgresRepository) Create(ctx context.Context, rec Record) error {
	files, err := marshalJSON(rec.Files, "[]")
	if err != nil {
		return err
	}
	specs, err := marshalJSON(rec.Mapping, "[]")
	if err != nil {
		return err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO runs (id, status, files, mapping, created_at) VALUES ($1, $2, $3, $4, $5)`,
		postgres.ToUUID(rec.ID), string(rec.Status), files, specs, postgres.ToTimestamptz(created))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Record, error) {
	pgID := postgres.ToUUID(id)
	if !pgID.Valid {
		return Record{}, ErrNotFound
	}
	rec, err := scanRun(r.pool.QueryRow(ctx, selectRun+` WHERE id = $1`, pgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get run: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx, selectRun+` ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status runapi.Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE runs SET status = $2 WHERE id = $1`, postgres.ToUUID(id), string(status))
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Finish(ctx context.Context, id string, res Result) error {
	issues, err := marshalJSON(res.Issues, "[]")
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE runs SET status = $2, validation_issues = $3, error = $4, completed_at = now() WHERE id = $1`,
		postgres.ToUUID(id), string(res.Status), issues, res.Error)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM runs WHERE created_at < $1 AND status IN ($2, $3)`,
		postgres.ToTimestamptz(cutoff), string(runapi.StatusComplete), string(runapi.StatusFailed))
	if err != nil {
		return 0, fmt.Errorf("delete old runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (Record, error) {
	var (
		rec                  Record
		id                   pgtype.UUID
		status               string
		files, specs, issues []byte
		created, completed   pgtype.Timestamptz
	)
	if err := row.Scan(&id, &status, &files, &specs, &issues, &rec.Error, &created, &completed); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(files, &rec.Files); err != nil {
		return Record{}, fmt.Errorf("decode files: %w", err)
	}
	if err := json.Unmarshal(specs, &rec.Mapping); err != nil {
		return Record{}, fmt.Errorf("decode mapping: %w", err)
	}
	var decoded []validation.Issue
	if err := json.Unmarshal(issues, &decoded); err != nil {
		return Record{}, fmt.Errorf("decode issues: %w", err)
	}
	if len(decoded) > 0 {
		rec.Issues = decoded
	}
	rec.ID = postgres.UUIDString(id)
	rec.Status = runapi.Status(status)
	rec.CreatedAt = postgres.TimeOf(created)
	rec.CompletedAt = postgres.TimeOf(completed)
	return rec, nil
}

func marshalJSON(v any, empty string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	if string(b) == "null" {
		return []byte(empty), nil
	}
	return b, nil
}
