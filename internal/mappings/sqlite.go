package mappings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mapping_configurations (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    mappings   TEXT NOT NULL,
    created_at TEXT NOT NULL
);`

// SQLiteRepository stores configurations in a local SQLite file.
// It backs the command line front end.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) Save(ctx context.Context, name string, entries []Entry) (Config, error) {
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

	cfg := Config{
		ID:        uuid.NewString(),
		Name:      name,
		Mappings:  cloneEntries(entries),
		CreatedAt: time.Now().UTC(),
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO mapping_configurations (id, name, mappings, created_at) VALUES (?, ?, ?, ?)`,
		cfg.ID, cfg.Name, string(payload), cfg.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Config{}, fmt.Errorf("insert mapping configuration: %w", err)
	}
	return cfg, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]Config, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, mappings, created_at FROM mapping_configurations ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query mapping configurations: %w", err)
	}
	defer rows.Close()

	configs := make([]Config, 0)
	for rows.Next() {
		var (
			cfg              Config
			payload, created string
		)
		if err := rows.Scan(&cfg.ID, &cfg.Name, &payload, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &cfg.Mappings); err != nil {
			return nil, fmt.Errorf("decode mappings of %s: %w", cfg.ID, err)
		}
		if cfg.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("decode created_at of %s: %w", cfg.ID, err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM mapping_configurations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete mapping configuration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
