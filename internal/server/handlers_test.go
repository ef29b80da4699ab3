package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egibi/tierd/internal/engine"
	"github.com/egibi/tierd/internal/runtime"
	"github.com/egibi/tierd/internal/tiering"
)

type stubEngine struct {
	table      string
	partitions []engine.Partition
	detached   map[string]bool
}

func (s *stubEngine) Table() string { return s.table }

func (s *stubEngine) Partitions(ctx context.Context) ([]engine.Partition, error) {
	var out []engine.Partition
	for _, p := range s.partitions {
		if !s.detached[p.Name] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubEngine) Detach(ctx context.Context, name string) error {
	s.detached[name] = true
	return nil
}

func (s *stubEngine) Attach(ctx context.Context, name string) error {
	s.detached[name] = false
	return nil
}

func (s *stubEngine) PartitionRowCount(ctx context.Context, name string) (int64, bool, error) {
	for _, p := range s.partitions {
		if p.Name == name && !s.detached[name] {
			return p.NumRows, true, nil
		}
	}
	return 0, false, nil
}

type stubStore struct {
	cfg tiering.TieringConfig
}

func (s *stubStore) TieringConfig(ctx context.Context) tiering.TieringConfig { return s.cfg }

func (s *stubStore) SaveTieringConfig(ctx context.Context, cfg tiering.TieringConfig) (tiering.TieringConfig, error) {
	s.cfg = cfg
	return cfg, nil
}

type stubCleaner struct {
	result tiering.CleanupResult
}

func (s *stubCleaner) CleanupTokens(ctx context.Context) tiering.CleanupResult { return s.result }

type testServer struct {
	srv          *Server
	eng          *stubEngine
	store        *stubStore
	cleaner      *stubCleaner
	externalDisk string
	engineData   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	tmp := t.TempDir()
	engineData := filepath.Join(tmp, "engine")
	externalDisk := filepath.Join(tmp, "cold")
	require.NoError(t, os.MkdirAll(filepath.Join(engineData, "ohlc"), 0755))
	require.NoError(t, os.MkdirAll(externalDisk, 0755))

	cfg := tiering.DefaultTieringConfig()
	cfg.ExternalDiskPath = externalDisk

	eng := &stubEngine{table: "ohlc", detached: make(map[string]bool)}
	store := &stubStore{cfg: cfg}
	cleaner := &stubCleaner{}
	rt := runtime.NewLocalRuntime(time.Minute)

	svc := tiering.NewService(tiering.Options{
		Store:         store,
		Cleaner:       cleaner,
		Engine:        eng,
		EngineRuntime: rt,
		DBRuntime:     rt,
		EngineDataDir: engineData,
		HotDiskPath:   tmp,
		DumpCommand:   []string{"sh", "-c", "printf dumpfile"},
	})

	return &testServer{
		srv:          New(":0", svc),
		eng:          eng,
		store:        store,
		cleaner:      cleaner,
		externalDisk: externalDisk,
		engineData:   engineData,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestGetConfig(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg tiering.TieringConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, ts.externalDisk, cfg.ExternalDiskPath)
}

func TestPutConfig(t *testing.T) {
	ts := newTestServer(t)

	cfg := ts.store.cfg
	cfg.KeepMonths = 9
	rec := ts.do(t, http.MethodPut, "/api/v1/config", cfg)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 9, ts.store.cfg.KeepMonths)
}

func TestPutConfig_Invalid(t *testing.T) {
	ts := newTestServer(t)

	cfg := ts.store.cfg
	cfg.ThresholdPercent = 200
	rec := ts.do(t, http.MethodPut, "/api/v1/config", cfg)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Message, "thresholdPercent")
}

func TestPutConfig_MalformedBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/config", bytes.NewBufferString("{нет"))
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status tiering.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, ts.externalDisk, status.Config.ExternalDiskPath)
}

func TestPartitions(t *testing.T) {
	ts := newTestServer(t)
	ts.eng.partitions = []engine.Partition{
		{Name: "2026-02", NumRows: 100, Active: true},
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/partitions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list tiering.PartitionList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Hot, 1)
	assert.Equal(t, "2026-02", list.Hot[0].Name)
}

func TestArchive(t *testing.T) {
	ts := newTestServer(t)
	ts.eng.partitions = []engine.Partition{{Name: "2024-05", NumRows: 100}}

	dir := filepath.Join(ts.engineData, "ohlc", "2024-05.detached")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ts.d"), []byte("x"), 0644))

	rec := ts.do(t, http.MethodPost, "/api/v1/archive", tiering.ArchiveRequest{Partitions: []string{"2024-05"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var result tiering.OperationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "archived 1 of 1 partitions", result.Message)
}

func TestArchive_InvalidPartitionName(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/archive", tiering.ArchiveRequest{Partitions: []string{"../../etc"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRestore_MissingArchiveFails(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/restore", RestoreRequest{Partition: "2024-05"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var result tiering.OperationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "not found")
}

func TestRestore_InvalidName(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/restore", RestoreRequest{Partition: "may-2024"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCleanupTokens(t *testing.T) {
	ts := newTestServer(t)
	ts.cleaner.result = tiering.CleanupResult{
		ExpiredTokensPruned: 7,
		VacuumCompleted:     true,
		Message:             "pruned 7 tokens",
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/cleanup/tokens", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result tiering.CleanupResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.EqualValues(t, 7, result.ExpiredTokensPruned)
}

func TestBackups_CreateAndList(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/backups", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result tiering.OperationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Success)

	rec = ts.do(t, http.MethodGet, "/api/v1/backups", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var backups []tiering.BackupInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &backups))
	require.Len(t, backups, 1)
	assert.EqualValues(t, len("dumpfile"), backups[0].SizeBytes)
}

func TestBackups_EmptyListIsArray(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/backups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestAudit(t *testing.T) {
	ts := newTestServer(t)
	ts.eng.partitions = []engine.Partition{{Name: "2024-05", NumRows: 100}}

	dir := filepath.Join(ts.engineData, "ohlc", "2024-05.detached")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ts.d"), []byte("x"), 0644))
	ts.do(t, http.MethodPost, "/api/v1/archive", tiering.ArchiveRequest{Partitions: []string{"2024-05"}})

	rec := ts.do(t, http.MethodGet, "/api/v1/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []tiering.LogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, tiering.ActionArchive, entries[0].Action)
}

func TestAudit_InvalidLimit(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/audit?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
}
