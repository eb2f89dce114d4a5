package progress

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/ocrbatch/internal/common"
)

const (
	DefaultSQLiteDSN = "file:ocr_progress.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	progressTable = "ocr_progress"
	insertBatch   = 100
)

var progressColumns = []string{
	"document",
	"total_pages",
	"processed_pages",
	"completed",
	"output_file",
	"start_time",
	"completion_time",
}

// SQLStore keeps the snapshot in one table, replaced inside a single transaction on every save.
type SQLStore struct {
	drv      *entsql.Driver
	pool     *pgxpool.Pool
	dialect  string
	logger   *slog.Logger
	readOnly bool
}

// OpenSQLite opens (and migrates) a SQLite-backed store. A "sqlite://" prefix on dsn is accepted.
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	logger.Info("progress.sql.open", "dialect", dialect.SQLite, "dsn", dsn)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", common.ErrPersistence, err)
	}
	// one connection keeps in-memory databases shared and writes serialized
	db.SetMaxOpenConns(1)

	s := &SQLStore{drv: entsql.OpenDB(dialect.SQLite, db), dialect: dialect.SQLite, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres creates a pgx pool, wraps it for ent's SQL driver and migrates the table.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("progress.sql.open", "dialect", dialect.Postgres)
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, fmt.Errorf("%w: parse dsn: %w", common.ErrPersistence, err)
	}
	pc.MaxConns = 2
	pc.MaxConnIdleTime = 5 * time.Minute
	pc.ConnConfig.RuntimeParams["application_name"] = "ocrbatch"

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, fmt.Errorf("%w: connect: %w", common.ErrPersistence, err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", common.ErrPersistence, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	s := &SQLStore{drv: entsql.OpenDB(dialect.Postgres, db), pool: pool, dialect: dialect.Postgres, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	logger.Info("successfully connected to database")
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	b := entsql.Dialect(s.dialect)
	cols := []*entsql.ColumnBuilder{
		b.Column("document").Type("TEXT PRIMARY KEY"),
		b.Column("total_pages").Type("INTEGER NOT NULL"),
		b.Column("processed_pages").Type("INTEGER NOT NULL"),
		b.Column("completed").Type("BOOLEAN NOT NULL DEFAULT FALSE"),
		b.Column("output_file").Type("TEXT NOT NULL DEFAULT ''"),
		b.Column("start_time").Type("TEXT"),
		b.Column("completion_time").Type("TEXT"),
	}
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i], _ = c.Query()
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", progressTable, strings.Join(defs, ", "))
	if err := s.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
		return fmt.Errorf("%w: migrate: %w", common.ErrPersistence, err)
	}
	return nil
}

// Load reads every row. Rows that break the record invariants are dropped with a warning.
func (s *SQLStore) Load(ctx context.Context) (RunState, error) {
	b := entsql.Dialect(s.dialect)
	query, args := b.Select(progressColumns...).
		From(b.Table(progressTable)).
		OrderBy("document").
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: load: %w", common.ErrPersistence, err)
	}
	defer rows.Close()

	state := NewRunState()
	for rows.Next() {
		var (
			id                    string
			p                     DocumentProgress
			startedAt, finishedAt entsql.NullString
		)
		if err := rows.Scan(&id, &p.TotalPages, &p.ProcessedPages, &p.Completed, &p.OutputFile, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", common.ErrPersistence, err)
		}
		p.StartedAt = s.timestamp(id, startedAt)
		p.CompletedAt = s.timestamp(id, finishedAt)
		if err := p.Validate(); err != nil {
			s.logger.Warn("progress.load.invalid_entry", "document", id, "err", err)
			continue
		}
		state[id] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %w", common.ErrPersistence, err)
	}
	s.logger.Info("progress.load.ok", "dialect", s.dialect, "documents", len(state))
	return state, nil
}

func (s *SQLStore) timestamp(id string, v entsql.NullString) *Timestamp {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := ParseTimestamp(v.String)
	if err != nil {
		s.logger.Warn("progress.load.bad_timestamp", "document", id, "value", v.String, "err", err)
		return nil
	}
	return NewTimestamp(t)
}

// Save replaces the table contents with state in one transaction.
// It does not observe ctx cancellation so an interrupted run can still flush.
func (s *SQLStore) Save(ctx context.Context, state RunState) (err error) {
	if s.readOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, s.dialect)
	}
	ctx = context.WithoutCancel(ctx)
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", common.ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	b := entsql.Dialect(s.dialect)
	query, args := b.Delete(progressTable).Query()
	if err = tx.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("%w: clear: %w", common.ErrPersistence, err)
	}

	ids := state.IDs()
	for start := 0; start < len(ids); start += insertBatch {
		end := min(start+insertBatch, len(ids))
		ins := b.Insert(progressTable).Columns(progressColumns...)
		for _, id := range ids[start:end] {
			p := state[id]
			ins.Values(id, p.TotalPages, p.ProcessedPages, p.Completed, p.OutputFile,
				timestampValue(p.StartedAt), timestampValue(p.CompletedAt))
		}
		query, args = ins.Query()
		if err = tx.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("%w: insert: %w", common.ErrPersistence, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", common.ErrPersistence, err)
	}
	s.logger.Debug("progress.save.ok", "dialect", s.dialect, "documents", len(state))
	return nil
}

func timestampValue(t *Timestamp) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

// Close releases the driver and, for Postgres, the pool.
func (s *SQLStore) Close() error {
	err := s.drv.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}
