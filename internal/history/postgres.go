package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/swasthya/homeo-assistant/internal/domain"
	"github.com/swasthya/homeo-assistant/internal/observability"
)

const schema = `
CREATE TABLE IF NOT EXISTS history_entries (
	seq        BIGSERIAL PRIMARY KEY,
	id         UUID NOT NULL UNIQUE,
	mode       TEXT NOT NULL,
	transcript TEXT NOT NULL,
	locale     TEXT NOT NULL,
	result     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps history in the history_entries table
type PostgresStore struct {
	db       *sql.DB
	capacity int
}

// NewPostgresStore opens dsn, verifies the connection and creates the table
func NewPostgresStore(ctx context.Context, dsn string, capacity int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}

	return &PostgresStore{db: db, capacity: capacityOrDefault(capacity)}, nil
}

func (p *PostgresStore) Record(ctx context.Context, mode domain.Mode, transcript domain.Transcript, result *domain.StructuredResult, locale domain.Locale) (string, error) {
	entry := newEntry(mode, transcript, result, locale)
	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}

	evicted, err := p.recordTx(ctx, entry, resultJSON)
	if err != nil {
		observability.RecordHistoryWrite("postgres", false)
		return "", err
	}

	observability.RecordHistoryWrite("postgres", true)
	observability.RecordHistoryEvictions("postgres", evicted)
	return entry.ID, nil
}

func (p *PostgresStore) recordTx(ctx context.Context, entry domain.HistoryEntry, resultJSON []byte) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `INSERT INTO history_entries (id, mode, transcript, locale, result, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, insert,
		entry.ID,
		string(entry.Mode),
		string(entry.Transcript),
		string(entry.Locale),
		resultJSON,
		entry.CreatedAt,
	); err != nil {
		return 0, fmt.Errorf("failed to insert history entry: %w", err)
	}

	trim := `DELETE FROM history_entries WHERE seq NOT IN (SELECT seq FROM history_entries ORDER BY seq DESC LIMIT $1)`
	res, err := tx.ExecContext(ctx, trim, p.capacity)
	if err != nil {
		return 0, fmt.Errorf("failed to trim history: %w", err)
	}
	evicted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count trimmed history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit history entry: %w", err)
	}
	return evicted, nil
}

func (p *PostgresStore) List(ctx context.Context) ([]domain.HistoryEntry, error) {
	query := `SELECT id, mode, transcript, locale, result, created_at FROM history_entries ORDER BY seq DESC LIMIT $1`

	rows, err := p.db.QueryContext(ctx, query, p.capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var (
			e          domain.HistoryEntry
			mode       string
			transcript string
			locale     string
			resultJSON []byte
		)
		if err := rows.Scan(&e.ID, &mode, &transcript, &locale, &resultJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Mode = domain.Mode(mode)
		e.Transcript = domain.Transcript(transcript)
		e.Locale = domain.Locale(locale)
		if len(resultJSON) > 0 {
			e.Result = &domain.StructuredResult{}
			if err := json.Unmarshal(resultJSON, e.Result); err != nil {
				return nil, fmt.Errorf("failed to unmarshal result: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgresStore) Clear(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM history_entries`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
