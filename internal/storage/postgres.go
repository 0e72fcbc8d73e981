package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/deusflow/impactdigest/internal/logger"
)

const historyTable = "published_items"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore keeps the history in PostgreSQL. The position column
// preserves insertion order across runs.
type PostgresStore struct {
	db       *sql.DB
	capacity int
}

// NewPostgresStore connects, pings and makes sure the schema exists.
func NewPostgresStore(ctx context.Context, connectionString string, capacity int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db, capacity: capacity}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("PostgreSQL history connected")
	return store, nil
}

func (ps *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ` + historyTable + ` (
		identifier TEXT PRIMARY KEY,
		position BIGINT NOT NULL,
		published_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_published_items_position ON ` + historyTable + `(position);
	`
	_, err := ps.db.ExecContext(ctx, schema)
	return err
}

// Load returns the stored identifiers, oldest first.
func (ps *PostgresStore) Load(ctx context.Context) (*History, error) {
	query, args, err := loadQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	return NewHistoryFrom(ps.capacity, ids), nil
}

// Save replaces the stored history with h in one transaction: evicted
// identifiers are deleted and the rest upserted with their position.
func (ps *PostgresStore) Save(ctx context.Context, h *History) error {
	ids := h.IDs()

	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback()

	query, args, err := pruneQuery(ids).ToSql()
	if err != nil {
		return fmt.Errorf("build prune query: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Debug("Evicted old history rows", "rows", n)
	}

	if len(ids) > 0 {
		query, args, err = upsertQuery(ids).ToSql()
		if err != nil {
			return fmt.Errorf("build upsert query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

// Close closes the database connection
func (ps *PostgresStore) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}

func loadQuery() sq.SelectBuilder {
	return psql.Select("identifier").From(historyTable).OrderBy("position ASC")
}

func pruneQuery(keep []string) sq.DeleteBuilder {
	return psql.Delete(historyTable).Where("NOT (identifier = ANY(?))", pq.StringArray(append([]string{}, keep...)))
}

func upsertQuery(ids []string) sq.InsertBuilder {
	ins := psql.Insert(historyTable).Columns("identifier", "position")
	for i, id := range ids {
		ins = ins.Values(id, i)
	}
	return ins.Suffix("ON CONFLICT (identifier) DO UPDATE SET position = EXCLUDED.position")
}
