package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fasanicam/ferme-dashboard/internal/app/analytics"
	"github.com/fasanicam/ferme-dashboard/internal/app/publish"
	"github.com/fasanicam/ferme-dashboard/internal/app/recent"
	"github.com/fasanicam/ferme-dashboard/internal/app/state"
	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	srv    *Server
	state  *state.Store
	ring   *recent.Ring[domain.RawMessage]
	rec    *analytics.Recorder
	store  *fakeStore
	sender *fakeSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:  state.New(),
		ring:   recent.New[domain.RawMessage](3),
		store:  &fakeStore{},
		sender: &fakeSender{},
	}
	f.rec = analytics.NewRecorder(nopSubmitter{}, f.store, nopObs{}, analytics.Options{})

	srv, err := NewServer(Deps{
		State:     f.state,
		Recent:    f.ring,
		Recorder:  f.rec,
		Reader:    f.store,
		Admin:     f.store,
		Publisher: publish.NewPublisher(f.sender, "bzh/mecatro/dashboard"),
		WS: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		Obs:   nopObs{},
		Clock: func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	f.srv = srv
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.Error(t, err)
}

func TestSnapshotAndRecent(t *testing.T) {
	f := newFixture(t)
	f.state.Upsert("serre", "temp", "21", fixedNow)
	for _, p := range []string{"a", "b", "c", "d"} {
		f.ring.Push(domain.RawMessage{Topic: "t", Payload: p})
	}

	rr := f.do(t, http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, rr.Code)
	snap := decode[domain.Snapshot](t, rr)
	assert.Equal(t, "21", snap["serre"]["temp"].Value)

	rr = f.do(t, http.MethodGet, "/api/messages/recent", "")
	msgs := decode[[]domain.RawMessage](t, rr)
	require.Len(t, msgs, 3)
	assert.Equal(t, "d", msgs[0].Payload, "newest first")

	rr = f.do(t, http.MethodGet, "/api/messages/recent?limit=1", "")
	assert.Len(t, decode[[]domain.RawMessage](t, rr), 1)

	rr = f.do(t, http.MethodGet, "/api/messages/recent?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHistoryPassesPathAndLimit(t *testing.T) {
	f := newFixture(t)
	f.store.history = []domain.HistoryPoint{{Value: "1", Timestamp: fixedNow}}

	rr := f.do(t, http.MethodGet, "/api/history/serre/temp?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"serre", "temp"}, f.store.lastArgs)
	assert.Equal(t, 5, f.store.lastLimit)
	assert.Len(t, decode[[]domain.HistoryPoint](t, rr), 1)

	f.do(t, http.MethodGet, "/api/history/serre/temp", "")
	assert.Equal(t, defaultHistoryLimit, f.store.lastLimit)
}

func TestEmptyResultsAreArrays(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/history/m/v", "/api/stats/messages", "/api/stats/trends", "/api/analysis/projects"} {
		rr := f.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "[]\n", rr.Body.String(), path)
	}
}

func TestStatsWindows(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodGet, "/api/stats/messages?limit=30", "")
	assert.Equal(t, fixedNow.Add(-30*time.Minute), f.store.lastSince)
	assert.Equal(t, 30, f.store.lastLimit)

	f.do(t, http.MethodGet, "/api/stats/trends?hours=2", "")
	assert.Equal(t, fixedNow.Add(-2*time.Hour), f.store.lastSince)
}

func TestPublicationsComeFromMemory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rec.RecordPublication("silo", fixedNow))
	require.NoError(t, f.rec.RecordPublication("serre", fixedNow))
	require.NoError(t, f.rec.RecordPublication("serre", fixedNow))

	rr := f.do(t, http.MethodGet, "/api/stats/publications", "")
	got := decode[[]domain.PublicationCount](t, rr)
	assert.Equal(t, []domain.PublicationCount{{Module: "serre", Count: 2}, {Module: "silo", Count: 1}}, got)
}

func TestDeleteRoutes(t *testing.T) {
	f := newFixture(t)
	f.store.deleteModule = domain.DeleteModuleResult{Measurements: 7, Publications: 3}
	f.store.deleteVariable = 4

	rr := f.do(t, http.MethodDelete, "/api/modules/serre", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, float64(7), body["measurements"])
	assert.Equal(t, float64(3), body["publications"])
	assert.Equal(t, []string{"serre"}, f.store.lastArgs)

	rr = f.do(t, http.MethodDelete, "/api/modules/serre/temp", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(4), decode[map[string]any](t, rr)["measurements"])
	assert.Equal(t, []string{"serre", "temp"}, f.store.lastArgs)

	rr = f.do(t, http.MethodGet, "/api/modules/serre/temp", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestStoreErrorIs500(t *testing.T) {
	f := newFixture(t)
	f.store.err = errors.New("connection refused")

	rr := f.do(t, http.MethodGet, "/api/modules", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, decode[map[string]string](t, rr)["error"], "modules")
}

func TestProjectDetails(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/analysis/projects/ghost", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	f.store.details = domain.ProjectDetails{Project: "serre", Stats: domain.ProjectStats{Total: 12, Compliant: 10}}
	rr = f.do(t, http.MethodGet, "/api/analysis/projects/serre", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(12), decode[domain.ProjectDetails](t, rr).Stats.Total)
	assert.Equal(t, []string{"serre"}, f.store.lastArgs)
}

func TestAnalysisGlobal(t *testing.T) {
	f := newFixture(t)
	f.store.global = domain.NewGlobalAnalysis(4, 3, 1)

	rr := f.do(t, http.MethodGet, "/api/analysis", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, f.store.global, decode[domain.GlobalAnalysis](t, rr))
}

func TestPublish(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/publish", `{"project":"serre","variable":"pompe","value":"1"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "bzh/mecatro/dashboard/serre/pompe", decode[map[string]any](t, rr)["topic"])
	assert.Equal(t, "1", f.sender.payload)

	rr = f.do(t, http.MethodPost, "/api/publish", `{"project":"serre","variable":"","value":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/publish", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	f.sender.err = ports.ErrNotConnected
	rr = f.do(t, http.MethodPost, "/api/publish", `{"project":"serre","variable":"pompe","value":"1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestWebsocketAndHealthRoutes(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusTeapot, f.do(t, http.MethodGet, "/ws", "").Code)

	rr := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rr)["status"])
}

type fakeStore struct {
	err            error
	history        []domain.HistoryPoint
	global         domain.GlobalAnalysis
	details        domain.ProjectDetails
	deleteModule   domain.DeleteModuleResult
	deleteVariable int64

	lastArgs  []string
	lastLimit int
	lastSince time.Time
}

func (s *fakeStore) History(_ context.Context, module, variable string, limit int) ([]domain.HistoryPoint, error) {
	s.lastArgs, s.lastLimit = []string{module, variable}, limit
	return s.history, s.err
}

func (s *fakeStore) MessageStats(_ context.Context, since time.Time, limit int) ([]domain.BucketCount, error) {
	s.lastSince, s.lastLimit = since, limit
	return nil, s.err
}

func (s *fakeStore) PublicationTrends(_ context.Context, since time.Time) ([]domain.ModuleTrend, error) {
	s.lastSince = since
	return nil, s.err
}

func (s *fakeStore) ModulesWithVariables(context.Context) (map[string][]string, error) {
	return map[string][]string{"serre": {"temp"}}, s.err
}

func (s *fakeStore) AnalysisGlobal(context.Context, time.Time) (domain.GlobalAnalysis, error) {
	return s.global, s.err
}

func (s *fakeStore) AnalysisProjects(context.Context) ([]domain.ProjectSummary, error) {
	return nil, s.err
}

func (s *fakeStore) ProjectDetails(_ context.Context, project string, _ time.Time) (domain.ProjectDetails, error) {
	s.lastArgs = []string{project}
	return s.details, s.err
}

func (s *fakeStore) DeleteVariable(_ context.Context, module, variable string) (int64, error) {
	s.lastArgs = []string{module, variable}
	return s.deleteVariable, s.err
}

func (s *fakeStore) DeleteModule(_ context.Context, module string) (domain.DeleteModuleResult, error) {
	s.lastArgs = []string{module}
	return s.deleteModule, s.err
}

func (s *fakeStore) CountRawMessages(context.Context) (int64, error) { return 0, nil }

func (s *fakeStore) DeleteOldestRawMessages(context.Context, int64) (int64, error) { return 0, nil }

type fakeSender struct {
	topic, payload string
	err            error
}

func (s *fakeSender) Publish(_ context.Context, topic, payload string) error {
	if s.err != nil {
		return s.err
	}
	s.topic, s.payload = topic, payload
	return nil
}

type nopSubmitter struct{}

func (nopSubmitter) Submit(domain.Record) error { return nil }

type nopObs struct{}

func (nopObs) LogInfo(string, ...ports.Field)            {}
func (nopObs) LogWarn(string, ...ports.Field)            {}
func (nopObs) LogError(string, error, ...ports.Field)    {}
func (nopObs) LogCritical(string, error, ...ports.Field) {}
func (nopObs) IncCounter(string, float64)                {}
func (nopObs) ObserveLatency(string, float64)            {}
func (nopObs) SetGauge(string, float64)                  {}
