package mappings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JonMunkholm/mdo/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores configurations in the server database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository expects the schema from postgres.Migrate.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Save(ctx context.Context, name string, entries []Entry) (Config, error) {
	name, err := validName(name)
	if err != nil {
		return Config{}, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return Config{}, fmt.Errorf("marshal mappings: %w", err)
	}

	cfg := Config{ID: uuid.NewString(), Name: name, Mappings: cloneEntries(entries)}
	var created pgtype.Timestamptz
	err = r.pool.QueryRow(ctx,
		`INSERT INTO mapping_configurations (id, name, mappings) VALUES ($1, $2, $3) RETURNING created_at`,
		postgres.ToUUID(cfg.ID), cfg.Name, payload).Scan(&created)
	if err != nil {
		return Config{}, fmt.Errorf("insert mapping configuration: %w", err)
	}
	cfg.CreatedAt = postgres.TimeOf(created)
	return cfg, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Config, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, mappings, created_at FROM mapping_configurations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query mapping configurations: %w", err)
	}
	defer rows.Close()

	configs := make([]Config, 0)
	for rows.Next() {
		var (
			cfg     Config
			id      pgtype.UUID
			payload []byte
			created pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &cfg.Name, &payload, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &cfg.Mappings); err != nil {
			return nil, fmt.Errorf("decode mappings: %w", err)
		}
		cfg.ID = postgres.UUIDString(id)
		cfg.CreatedAt = postgres.TimeOf(created)
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	pgID := postgres.ToUUID(id)
	if !pgID.Valid {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM mapping_configurations WHERE id = $1`, pgID)
	if err != nil {
		return fmt.Errorf("delete mapping configuration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
