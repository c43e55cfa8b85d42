package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wricardo/qlink/game/engine"
)

// DefaultPostgresTable holds saved games.
const DefaultPostgresTable = "qlink_saves"

// PostgresPersistence implements SessionPersistence on a single table
type PostgresPersistence struct {
	pool    *pgxpool.Pool
	table   string
	timeout time.Duration
}

// NewPostgresPersistence creates the table when missing. The pool is not
// closed by the persistence layer.
func NewPostgresPersistence(ctx context.Context, pool *pgxpool.Pool, table string) (*PostgresPersistence, error) {
	if table == "" {
		table = DefaultPostgresTable
	}
	pp := &PostgresPersistence{
		pool:    pool,
		table:   pgx.Identifier{table}.Sanitize(),
		timeout: 5 * time.Second,
	}
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+pp.table+` (
		id       text PRIMARY KEY,
		mode     text NOT NULL,
		record   text NOT NULL,
		saved_at timestamptz NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", pp.table, err)
	}
	return pp, nil
}

// DialPostgres opens a pool for url and checks the connection.
func DialPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return pool, nil
}

func (pp *PostgresPersistence) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), pp.timeout)
}

// Save upserts a record
func (pp *PostgresPersistence) Save(id string, rec *engine.Record) error {
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	data, err := encode(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", id, err)
	}
	ctx, cancel := pp.ctx()
	defer cancel()
	_, err = pp.pool.Exec(ctx, `INSERT INTO `+pp.table+` (id, mode, record, saved_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET mode = EXCLUDED.mode, record = EXCLUDED.record, saved_at = EXCLUDED.saved_at`,
		id, string(rec.Mode), string(data))
	if err != nil {
		return fmt.Errorf("failed to store record %s: %w", id, err)
	}
	return nil
}

// Load reads a record
func (pp *PostgresPersistence) Load(id string) (*engine.Record, error) {
	ctx, cancel := pp.ctx()
	defer cancel()
	var text string
	err := pp.pool.QueryRow(ctx, `SELECT record FROM `+pp.table+` WHERE id = $1`, id).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	return decode(id, []byte(text))
}

// Delete removes a record
func (pp *PostgresPersistence) Delete(id string) error {
	ctx, cancel := pp.ctx()
	defer cancel()
	tag, err := pp.pool.Exec(ctx, `DELETE FROM `+pp.table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return nil
}

// ListAll returns all ids, sorted
func (pp *PostgresPersistence) ListAll() ([]string, error) {
	ctx, cancel := pp.ctx()
	defer cancel()
	rows, err := pp.pool.Query(ctx, `SELECT id FROM `+pp.table+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Exists checks if a record exists
func (pp *PostgresPersistence) Exists(id string) bool {
	ctx, cancel := pp.ctx()
	defer cancel()
	var ok bool
	err := pp.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+pp.table+` WHERE id = $1)`, id).Scan(&ok)
	return err == nil && ok
}
