package ferme

import (
	"context"
	"time"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
)

type stubStore struct{}

func (s *stubStore) Name() string                                    { return "stub" }
func (s *stubStore) WriteBatch(context.Context, []Record) error      { return nil }
func (s *stubStore) CountRawMessages(context.Context) (int64, error) { return 0, nil }
func (s *stubStore) DeleteOldestRawMessages(context.Context, int64) (int64, error) {
	return 0, nil
}
func (s *stubStore) History(context.Context, string, string, int) ([]domain.HistoryPoint, error) {
	return nil, nil
}
func (s *stubStore) MessageStats(context.Context, time.Time, int) ([]domain.BucketCount, error) {
	return nil, nil
}
func (s *stubStore) PublicationTrends(context.Context, time.Time) ([]domain.ModuleTrend, error) {
	return nil, nil
}
func (s *stubStore) ModulesWithVariables(context.Context) (map[string][]string, error) {
	return nil, nil
}
func (s *stubStore) AnalysisGlobal(context.Context, time.Time) (domain.GlobalAnalysis, error) {
	return domain.GlobalAnalysis{}, nil
}
func (s *stubStore) AnalysisProjects(context.Context) ([]domain.ProjectSummary, error) {
	return nil, nil
}
func (s *stubStore) ProjectDetails(context.Context, string, time.Time) (domain.ProjectDetails, error) {
	return domain.ProjectDetails{}, nil
}
func (s *stubStore) DeleteVariable(context.Context, string, string) (int64, error) { return 0, nil }
func (s *stubStore) DeleteModule(context.Context, string) (domain.DeleteModuleResult, error) {
	return domain.DeleteModuleResult{}, nil
}
func (s *stubStore) Close() error { return nil }

type stubQueue struct{}

func (s *stubQueue) Enqueue(WALEntryID, *Record) bool { return true }
func (s *stubQueue) DequeueBatch(int) []QueuedRecord  { return nil }
func (s *stubQueue) Len() int                         { return 0 }

type stubWAL struct{}

func (s *stubWAL) Append(*Record) (WALEntryID, error) { return 0, nil }
func (s *stubWAL) Iterate(WALEntryID, func(WALEntryID, *Record) error) error {
	return nil
}
func (s *stubWAL) Commit(WALEntryID) error  { return nil }
func (s *stubWAL) TruncateCommitted() error { return nil }
func (s *stubWAL) Stats() WALStats          { return WALStats{} }
func (s *stubWAL) Close() error             { return nil }

type stubObservability struct{}

func (s *stubObservability) LogInfo(string, ...Field)            {}
func (s *stubObservability) LogWarn(string, ...Field)            {}
func (s *stubObservability) LogError(string, error, ...Field)    {}
func (s *stubObservability) LogCritical(string, error, ...Field) {}
func (s *stubObservability) IncCounter(string, float64)          {}
func (s *stubObservability) ObserveLatency(string, float64)      {}
func (s *stubObservability) SetGauge(string, float64)            {}
