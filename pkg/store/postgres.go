package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps each record as a jsonb document in a single records
// table keyed by (table_name, id).
type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	s := &PostgresStore{DB: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, `
                CREATE TABLE IF NOT EXISTS records (
                        table_name TEXT NOT NULL,
                        id TEXT NOT NULL,
                        data JSONB NOT NULL,
                        PRIMARY KEY (table_name, id)
                );
        `)
	return err
}

func (s *PostgresStore) Insert(ctx context.Context, table string, record Record) (Record, error) {
	stored := cloneRecord(record)
	id, _ := stored["id"].(string)
	if id == "" {
		id = uuid.NewString()
		stored["id"] = id
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}
	_, err = s.DB.Exec(ctx, `
                INSERT INTO records (table_name, id, data)
                VALUES ($1, $2, $3::jsonb)
                ON CONFLICT (table_name, id) DO UPDATE SET data = EXCLUDED.data;
        `, table, id, data)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *PostgresStore) Get(ctx context.Context, table, id string) (Record, error) {
	var data []byte
	err := s.DB.QueryRow(ctx, `
                SELECT data FROM records WHERE table_name = $1 AND id = $2;
        `, table, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(table, id)
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

func (s *PostgresStore) Select(ctx context.Context, table string, filter Record) ([]Record, error) {
	query := `SELECT data FROM records WHERE table_name = $1`
	args := []any{table}
	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, err
		}
		query += ` AND data @> $2::jsonb`
		args = append(args, filterJSON)
	}
	query += ` ORDER BY id;`

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, table, id string, changes Record) (Record, error) {
	changed := cloneRecord(changes)
	delete(changed, "id")
	changesJSON, err := json.Marshal(changed)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.DB.QueryRow(ctx, `
                UPDATE records SET data = data || $3::jsonb
                WHERE table_name = $1 AND id = $2
                RETURNING data;
        `, table, id, changesJSON).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(table, id)
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

func (s *PostgresStore) Delete(ctx context.Context, table, id string) error {
	tag, err := s.DB.Exec(ctx, `
                DELETE FROM records WHERE table_name = $1 AND id = $2;
        `, table, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(table, id)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s != nil && s.DB != nil {
		s.DB.Close()
	}
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

var _ Store = (*PostgresStore)(nil)
