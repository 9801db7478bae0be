package ports

import (
	"context"
	"time"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
)

// RecordWriter persists batches drained from the write-behind queue.
type RecordWriter interface {
	WriteBatch(ctx context.Context, records []domain.Record) error
	Name() string
}

// RawLog is the retention surface of the raw-message log.
type RawLog interface {
	CountRawMessages(ctx context.Context) (int64, error)
	DeleteOldestRawMessages(ctx context.Context, n int64) (int64, error)
}

// Reader serves the history and analysis read paths.
type Reader interface {
	History(ctx context.Context, module, variable string, limit int) ([]domain.HistoryPoint, error)
	MessageStats(ctx context.Context, since time.Time, limit int) ([]domain.BucketCount, error)
	PublicationTrends(ctx context.Context, since time.Time) ([]domain.ModuleTrend, error)
	ModulesWithVariables(ctx context.Context) (map[string][]string, error)
	AnalysisGlobal(ctx context.Context, now time.Time) (domain.GlobalAnalysis, error)
	AnalysisProjects(ctx context.Context) ([]domain.ProjectSummary, error)
	ProjectDetails(ctx context.Context, project string, now time.Time) (domain.ProjectDetails, error)
}

// Admin holds the destructive maintenance operations.
type Admin interface {
	DeleteVariable(ctx context.Context, module, variable string) (int64, error)
	DeleteModule(ctx context.Context, module string) (domain.DeleteModuleResult, error)
}

type Store interface {
	RecordWriter
	RawLog
	Reader
	Admin
	Close() error
}
