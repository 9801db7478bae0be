package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

// maxRowsPerInsert keeps multi-row INSERTs under driver placeholder limits.
const maxRowsPerInsert = 200

// SQLStore persists records and serves the read side over database/sql
// (lib/pq for PostgreSQL/TimescaleDB, go-sql-driver/mysql for MariaDB).
type SQLStore struct {
	db *sql.DB
	d  Dialect
	q  Queries
}

func NewSQLStore(db *sql.DB, d Dialect) *SQLStore {
	return &SQLStore{db: db, d: d, q: d.Queries()}
}

func (s *SQLStore) Name() string { return s.d.Name }

func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.d.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s schema: %w", s.d.Name, err)
		}
	}
	return nil
}

// WriteBatch inserts the batch in one transaction, one multi-row INSERT per
// record kind.
func (s *SQLStore) WriteBatch(ctx context.Context, records []domain.Record) (err error) {
	if len(records) == 0 {
		return nil
	}

	groups := GroupByKind(records)
	for kind := range groups {
		if _, _, err := recordTable(kind); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, kind := range Kinds {
		rows := groups[kind]
		for start := 0; start < len(rows); start += maxRowsPerInsert {
			end := min(start+maxRowsPerInsert, len(rows))
			if err = s.insertChunk(ctx, tx, kind, rows[start:end]); err != nil {
				return err
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLStore) insertChunk(ctx context.Context, tx *sql.Tx, kind domain.RecordKind, rows []*domain.Record) error {
	stmt, err := s.d.InsertStatement(kind, len(rows))
	if err != nil {
		return err
	}
	args := make([]any, 0, len(rows)*6)
	for _, r := range rows {
		args = append(args, s.d.RecordArgs(r)...)
	}
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert %s: %w", kind, err)
	}
	return nil
}

func (s *SQLStore) CountRawMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, s.q.CountRaw).Scan(&n)
	return n, err
}

func (s *SQLStore) DeleteOldestRawMessages(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, s.q.DeleteOldestRaw, n)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// History returns the newest limit points, oldest first.
func (s *SQLStore) History(ctx context.Context, module, variable string, limit int) ([]domain.HistoryPoint, error) {
	rows, err := s.db.QueryContext(ctx, s.q.History, module, variable, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HistoryPoint
	for rows.Next() {
		var p domain.HistoryPoint
		if err := rows.Scan(&p.Value, &p.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

// MessageStats returns per-minute receipt counts since the cutoff, oldest first.
func (s *SQLStore) MessageStats(ctx context.Context, since time.Time, limit int) ([]domain.BucketCount, error) {
	out, err := s.buckets(ctx, s.q.MessageStats, s.d.Time(since), limit)
	if err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (s *SQLStore) PublicationTrends(ctx context.Context, since time.Time) ([]domain.ModuleTrend, error) {
	rows, err := s.db.QueryContext(ctx, s.q.PublicationTrends, s.d.Time(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ModuleTrend
	for rows.Next() {
		var t domain.ModuleTrend
		if err := rows.Scan(&t.Module, &t.Hour, &t.Count); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) ModulesWithVariables(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q.ModulesWithVariables)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var module, variable string
		if err := rows.Scan(&module, &variable); err != nil {
			return nil, err
		}
		out[module] = append(out[module], variable)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteVariable(ctx context.Context, module, variable string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q.DeleteVariable, module, variable)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) DeleteModule(ctx context.Context, module string) (out domain.DeleteModuleResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, s.q.DeleteModuleMeasurements, module)
	if err != nil {
		return out, err
	}
	if out.Measurements, err = res.RowsAffected(); err != nil {
		return out, err
	}
	res, err = tx.ExecContext(ctx, s.q.DeleteModulePublications, module)
	if err != nil {
		return out, err
	}
	if out.Publications, err = res.RowsAffected(); err != nil {
		return out, err
	}
	err = tx.Commit()
	return out, err
}

func (s *SQLStore) AnalysisGlobal(ctx context.Context, now time.Time) (domain.GlobalAnalysis, error) {
	var total, compliant, active int64
	if err := s.db.QueryRowContext(ctx, s.q.GlobalTotals).Scan(&total, &compliant); err != nil {
		return domain.GlobalAnalysis{}, err
	}
	since := now.Add(-24 * time.Hour)
	if err := s.db.QueryRowContext(ctx, s.q.ActiveProjects, s.d.Time(since)).Scan(&active); err != nil {
		return domain.GlobalAnalysis{}, err
	}
	return domain.NewGlobalAnalysis(total, compliant, active), nil
}

func (s *SQLStore) AnalysisProjects(ctx context.Context) ([]domain.ProjectSummary, error) {
	rows, err := s.db.QueryContext(ctx, s.q.Projects)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProjectSummary
	for rows.Next() {
		var (
			name                    string
			total, compliant, topic int64
			last                    sql.NullTime
		)
		if err := rows.Scan(&name, &total, &compliant, &last, &topic); err != nil {
			return nil, err
		}
		out = append(out, domain.NewProjectSummary(name, total, compliant, topic, nullTime(last)))
	}
	return out, rows.Err()
}

func (s *SQLStore) ProjectDetails(ctx context.Context, project string, now time.Time) (domain.ProjectDetails, error) {
	out := domain.ProjectDetails{Project: project}

	var first, last sql.NullTime
	if err := s.db.QueryRowContext(ctx, s.q.ProjectStats, project).
		Scan(&out.Stats.Total, &out.Stats.Compliant, &first, &last); err != nil {
		return out, fmt.Errorf("project stats: %w", err)
	}
	out.Stats.FirstSeen, out.Stats.LastSeen = nullTime(first), nullTime(last)

	var err error
	if out.Errors, err = s.topicCounts(ctx, s.q.ProjectErrors, false, project); err != nil {
		return out, fmt.Errorf("project errors: %w", err)
	}
	freq, err := s.buckets(ctx, s.q.ProjectFrequency, project, s.d.Time(now.Add(-time.Hour)))
	if err != nil {
		return out, fmt.Errorf("project frequency: %w", err)
	}
	out.Frequency = domain.NewFrequency(freq)
	if out.Categories, err = s.categories(ctx, project); err != nil {
		return out, fmt.Errorf("project categories: %w", err)
	}
	if out.TopTopics, err = s.topicCounts(ctx, s.q.ProjectTopTopics, true, project); err != nil {
		return out, fmt.Errorf("project topics: %w", err)
	}
	if out.Timeline, err = s.buckets(ctx, s.q.ProjectTimeline, project, s.d.Time(now.Add(-24*time.Hour))); err != nil {
		return out, fmt.Errorf("project timeline: %w", err)
	}
	if out.RecentMessages, err = s.recent(ctx, project); err != nil {
		return out, fmt.Errorf("project recent: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) buckets(ctx context.Context, query string, args ...any) ([]domain.BucketCount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BucketCount
	for rows.Next() {
		var b domain.BucketCount
		if err := rows.Scan(&b.Bucket, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLStore) topicCounts(ctx context.Context, query string, withLastSeen bool, project string) ([]domain.TopicCount, error) {
	rows, err := s.db.QueryContext(ctx, query, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TopicCount
	for rows.Next() {
		var tc domain.TopicCount
		if withLastSeen {
			var last sql.NullTime
			if err := rows.Scan(&tc.Topic, &tc.Count, &last); err != nil {
				return nil, err
			}
			tc.LastSeen = nullTime(last)
		} else if err := rows.Scan(&tc.Topic, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (s *SQLStore) categories(ctx context.Context, project string) ([]domain.CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, s.q.ProjectCategories, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CategoryCount
	for rows.Next() {
		var (
			c   domain.CategoryCount
			cat sql.NullString
		)
		if err := rows.Scan(&cat, &c.Count); err != nil {
			return nil, err
		}
		c.Category = cat.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) recent(ctx context.Context, project string) ([]domain.LoggedMessage, error) {
	rows, err := s.db.QueryContext(ctx, s.q.ProjectRecent, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LoggedMessage
	for rows.Next() {
		var (
			m       domain.LoggedMessage
			payload sql.NullString
		)
		if err := rows.Scan(&m.Topic, &payload, &m.Timestamp, &m.Compliant); err != nil {
			return nil, err
		}
		m.Payload = payload.String
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

var _ ports.Store = (*SQLStore)(nil)
