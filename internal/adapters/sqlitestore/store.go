// Package sqlitestore is the embedded storage backend: the same tables and
// queries as the SQL servers, on a zombiezen SQLite connection pool.
package sqlitestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/fasanicam/ferme-dashboard/internal/adapters/sink"
	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

const DefaultPoolSize = 4

type Config struct {
	// Path is the database file; ":memory:" requires PoolSize 1.
	Path     string
	PoolSize int
	Logger   *slog.Logger
}

// Store implements ports.Store on SQLite. Timestamps are stored as unix
// nanoseconds and booleans as 0/1.
type Store struct {
	pool   *sqlitex.Pool
	q      sink.Queries
	logger *slog.Logger
	path   string
}

func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    cfg.PoolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: opening %s: %w", cfg.Path, err)
	}
	cfg.Logger.Info("sqlite store opened", "path", cfg.Path, "pool_size", cfg.PoolSize)

	return &Store{
		pool:   pool,
		q:      sink.SQLite.Queries(),
		logger: cfg.Logger,
		path:   cfg.Path,
	}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite store: %s: %w", pragma, err)
		}
	}
	for _, stmt := range sink.SQLite.Schema() {
		if err := sqlitex.ExecuteTransient(conn, stmt, nil); err != nil {
			return fmt.Errorf("sqlite store: schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Name() string { return sink.SQLite.Name }

func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlite store: closing %s: %w", s.path, err)
	}
	s.logger.Info("sqlite store closed", "path", s.path)
	return nil
}

// WriteBatch inserts the batch in a single IMMEDIATE transaction.
func (s *Store) WriteBatch(ctx context.Context, records []domain.Record) (err error) {
	if len(records) == 0 {
		return nil
	}

	stmts := make(map[domain.RecordKind]string, len(sink.Kinds))
	for _, kind := range sink.Kinds {
		if stmts[kind], err = sink.SQLite.InsertStatement(kind, 1); err != nil {
			return err
		}
	}
	for i := range records {
		if _, ok := stmts[records[i].Kind]; !ok {
			return fmt.Errorf("sqlite store: unknown record kind %s", records[i].Kind)
		}
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: write batch: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlite store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for i := range records {
		r := &records[i]
		if err = sqlitex.Execute(conn, stmts[r.Kind], &sqlitex.ExecOptions{Args: sink.SQLite.RecordArgs(r)}); err != nil {
			return fmt.Errorf("sqlite store: insert %s: %w", r.Kind, err)
		}
	}
	return nil
}

func (s *Store) CountRawMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.query(ctx, s.q.CountRaw, nil, func(stmt *sqlite.Stmt) error {
		n = stmt.ColumnInt64(0)
		return nil
	})
	return n, err
}

func (s *Store) DeleteOldestRawMessages(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	return s.exec(ctx, s.q.DeleteOldestRaw, n)
}

func (s *Store) History(ctx context.Context, module, variable string, limit int) ([]domain.HistoryPoint, error) {
	var out []domain.HistoryPoint
	err := s.query(ctx, s.q.History, []any{module, variable, limit}, func(stmt *sqlite.Stmt) error {
		out = append(out, domain.HistoryPoint{Value: stmt.ColumnText(0), Timestamp: fromNanos(stmt.ColumnInt64(1))})
		return nil
	})
	if err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (s *Store) MessageStats(ctx context.Context, since time.Time, limit int) ([]domain.BucketCount, error) {
	out, err := s.buckets(ctx, s.q.MessageStats, since.UnixNano(), limit)
	if err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (s *Store) PublicationTrends(ctx context.Context, since time.Time) ([]domain.ModuleTrend, error) {
	var out []domain.ModuleTrend
	err := s.query(ctx, s.q.PublicationTrends, []any{since.UnixNano()}, func(stmt *sqlite.Stmt) error {
		out = append(out, domain.ModuleTrend{
			Module: stmt.ColumnText(0),
			Hour:   stmt.ColumnText(1),
			Count:  stmt.ColumnInt64(2),
		})
		return nil
	})
	return out, err
}

func (s *Store) ModulesWithVariables(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string)
	err := s.query(ctx, s.q.ModulesWithVariables, nil, func(stmt *sqlite.Stmt) error {
		module := stmt.ColumnText(0)
		out[module] = append(out[module], stmt.ColumnText(1))
		return nil
	})
	return out, err
}

func (s *Store) DeleteVariable(ctx context.Context, module, variable string) (int64, error) {
	return s.exec(ctx, s.q.DeleteVariable, module, variable)
}

func (s *Store) DeleteModule(ctx context.Context, module string) (out domain.DeleteModuleResult, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return out, fmt.Errorf("sqlite store: delete module: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return out, fmt.Errorf("sqlite store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err = sqlitex.Execute(conn, s.q.DeleteModuleMeasurements, &sqlitex.ExecOptions{Args: []any{module}}); err != nil {
		return out, err
	}
	out.Measurements = int64(conn.Changes())
	if err = sqlitex.Execute(conn, s.q.DeleteModulePublications, &sqlitex.ExecOptions{Args: []any{module}}); err != nil {
		return out, err
	}
	out.Publications = int64(conn.Changes())
	return out, nil
}

func (s *Store) AnalysisGlobal(ctx context.Context, now time.Time) (domain.GlobalAnalysis, error) {
	var total, compliant, active int64
	err := s.query(ctx, s.q.GlobalTotals, nil, func(stmt *sqlite.Stmt) error {
		total, compliant = stmt.ColumnInt64(0), stmt.ColumnInt64(1)
		return nil
	})
	if err != nil {
		return domain.GlobalAnalysis{}, err
	}
	err = s.query(ctx, s.q.ActiveProjects, []any{now.Add(-24 * time.Hour).UnixNano()}, func(stmt *sqlite.Stmt) error {
		active = stmt.ColumnInt64(0)
		return nil
	})
	if err != nil {
		return domain.GlobalAnalysis{}, err
	}
	return domain.NewGlobalAnalysis(total, compliant, active), nil
}

func (s *Store) AnalysisProjects(ctx context.Context) ([]domain.ProjectSummary, error) {
	var out []domain.ProjectSummary
	err := s.query(ctx, s.q.Projects, nil, func(stmt *sqlite.Stmt) error {
		out = append(out, domain.NewProjectSummary(
			stmt.ColumnText(0),
			stmt.ColumnInt64(1),
			stmt.ColumnInt64(2),
			stmt.ColumnInt64(4),
			nullNanos(stmt, 3),
		))
		return nil
	})
	return out, err
}

func (s *Store) ProjectDetails(ctx context.Context, project string, now time.Time) (domain.ProjectDetails, error) {
	out := domain.ProjectDetails{Project: project}

	err := s.query(ctx, s.q.ProjectStats, []any{project}, func(stmt *sqlite.Stmt) error {
		out.Stats.Total = stmt.ColumnInt64(0)
		out.Stats.Compliant = stmt.ColumnInt64(1)
		out.Stats.FirstSeen = nullNanos(stmt, 2)
		out.Stats.LastSeen = nullNanos(stmt, 3)
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("project stats: %w", err)
	}

	err = s.query(ctx, s.q.ProjectErrors, []any{project}, func(stmt *sqlite.Stmt) error {
		out.Errors = append(out.Errors, domain.TopicCount{Topic: stmt.ColumnText(0), Count: stmt.ColumnInt64(1)})
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("project errors: %w", err)
	}

	freq, err := s.buckets(ctx, s.q.ProjectFrequency, project, now.Add(-time.Hour).UnixNano())
	if err != nil {
		return out, fmt.Errorf("project frequency: %w", err)
	}
	out.Frequency = domain.NewFrequency(freq)

	err = s.query(ctx, s.q.ProjectCategories, []any{project}, func(stmt *sqlite.Stmt) error {
		out.Categories = append(out.Categories, domain.CategoryCount{Category: stmt.ColumnText(0), Count: stmt.ColumnInt64(1)})
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("project categories: %w", err)
	}

	err = s.query(ctx, s.q.ProjectTopTopics, []any{project}, func(stmt *sqlite.Stmt) error {
		out.TopTopics = append(out.TopTopics, domain.TopicCount{
			Topic:    stmt.ColumnText(0),
			Count:    stmt.ColumnInt64(1),
			LastSeen: nullNanos(stmt, 2),
		})
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("project topics: %w", err)
	}

	if out.Timeline, err = s.buckets(ctx, s.q.ProjectTimeline, project, now.Add(-24*time.Hour).UnixNano()); err != nil {
		return out, fmt.Errorf("project timeline: %w", err)
	}

	err = s.query(ctx, s.q.ProjectRecent, []any{project}, func(stmt *sqlite.Stmt) error {
		out.RecentMessages = append(out.RecentMessages, domain.LoggedMessage{
			Topic:     stmt.ColumnText(0),
			Payload:   stmt.ColumnText(1),
			Timestamp: fromNanos(stmt.ColumnInt64(2)),
			Compliant: stmt.ColumnInt64(3) != 0,
		})
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("project recent: %w", err)
	}
	return out, nil
}

func (s *Store) query(ctx context.Context, q string, args []any, fn func(*sqlite.Stmt) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: %w", err)
	}
	defer s.pool.Put(conn)
	return sqlitex.Execute(conn, q, &sqlitex.ExecOptions{Args: args, ResultFunc: fn})
}

func (s *Store) exec(ctx context.Context, q string, args ...any) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlite store: %w", err)
	}
	defer s.pool.Put(conn)
	if err := sqlitex.Execute(conn, q, &sqlitex.ExecOptions{Args: args}); err != nil {
		return 0, err
	}
	return int64(conn.Changes()), nil
}

func (s *Store) buckets(ctx context.Context, q string, args ...any) ([]domain.BucketCount, error) {
	var out []domain.BucketCount
	err := s.query(ctx, q, args, func(stmt *sqlite.Stmt) error {
		out = append(out, domain.BucketCount{Bucket: stmt.ColumnText(0), Count: stmt.ColumnInt64(1)})
		return nil
	})
	return out, err
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(stmt *sqlite.Stmt, col int) *time.Time {
	if stmt.ColumnType(col) == sqlite.TypeNull {
		return nil
	}
	t := fromNanos(stmt.ColumnInt64(col))
	return &t
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

var _ ports.Store = (*Store)(nil)
