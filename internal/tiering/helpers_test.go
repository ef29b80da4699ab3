package tiering

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/egibi/tierd/internal/engine"
	"github.com/egibi/tierd/internal/runtime"
)

// fakeEngine simulates the engine's partition metadata and attach/detach
// state transitions in memory.
type fakeEngine struct {
	table      string
	partitions map[string]engine.Partition
	detached   map[string]bool

	partitionsErr error
	detachErr     map[string]error
	attachErr     map[string]error

	detachCalls []string
	attachCalls []string
}

func newFakeEngine(table string, partitions ...engine.Partition) *fakeEngine {
	f := &fakeEngine{
		table:      table,
		partitions: make(map[string]engine.Partition),
		detached:   make(map[string]bool),
		detachErr:  make(map[string]error),
		attachErr:  make(map[string]error),
	}
	for _, p := range partitions {
		f.partitions[p.Name] = p
	}
	return f
}

func (f *fakeEngine) Table() string { return f.table }

func (f *fakeEngine) Partitions(ctx context.Context) ([]engine.Partition, error) {
	if f.partitionsErr != nil {
		return nil, f.partitionsErr
	}
	var out []engine.Partition
	for name, p := range f.partitions {
		if !f.detached[name] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeEngine) Detach(ctx context.Context, name string) error {
	f.detachCalls = append(f.detachCalls, name)
	if err := f.detachErr[name]; err != nil {
		return err
	}
	f.detached[name] = true
	return nil
}

func (f *fakeEngine) Attach(ctx context.Context, name string) error {
	f.attachCalls = append(f.attachCalls, name)
	if err := f.attachErr[name]; err != nil {
		return err
	}
	if _, ok := f.partitions[name]; !ok {
		f.partitions[name] = engine.Partition{Name: name}
	}
	f.detached[name] = false
	return nil
}

func (f *fakeEngine) PartitionRowCount(ctx context.Context, name string) (int64, bool, error) {
	if f.partitionsErr != nil {
		return 0, false, f.partitionsErr
	}
	p, ok := f.partitions[name]
	if !ok || f.detached[name] {
		return 0, false, nil
	}
	return p.NumRows, true, nil
}

// fakeRuntime delegates to a LocalRuntime but lets tests force individual
// operations to fail. With strictCopyDst set it mimics docker cp, which
// errors when the destination's parent directory does not exist.
type fakeRuntime struct {
	local *runtime.LocalRuntime

	copyFromErr   error
	copyToErr     error
	removeErr     error
	execErr       error
	execOutput    string
	strictCopyDst bool

	removed []string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{local: runtime.NewLocalRuntime(time.Minute)}
}

func (f *fakeRuntime) CopyFrom(ctx context.Context, src, dst string) error {
	if f.copyFromErr != nil {
		return f.copyFromErr
	}
	if err := f.checkCopyDst(dst); err != nil {
		return err
	}
	return f.local.CopyFrom(ctx, src, dst)
}

func (f *fakeRuntime) CopyTo(ctx context.Context, src, dst string) error {
	if f.copyToErr != nil {
		return f.copyToErr
	}
	if err := f.checkCopyDst(dst); err != nil {
		return err
	}
	return f.local.CopyTo(ctx, src, dst)
}

func (f *fakeRuntime) checkCopyDst(dst string) error {
	if !f.strictCopyDst {
		return nil
	}
	if _, err := os.Stat(filepath.Dir(dst)); err != nil {
		return fmt.Errorf("copy destination parent missing: %s", filepath.Dir(dst))
	}
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, path string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, path)
	return f.local.Remove(ctx, path)
}

func (f *fakeRuntime) ExecToFile(ctx context.Context, cmd []string, outPath string) error {
	if f.execErr != nil {
		return f.execErr
	}
	return os.WriteFile(outPath, []byte(f.execOutput), 0644)
}

// fakeStore returns a fixed policy.
type fakeStore struct {
	cfg TieringConfig
}

func (f *fakeStore) TieringConfig(ctx context.Context) TieringConfig { return f.cfg }

func (f *fakeStore) SaveTieringConfig(ctx context.Context, cfg TieringConfig) (TieringConfig, error) {
	f.cfg = cfg
	return cfg, nil
}

// fakeCleaner returns a fixed cleanup result.
type fakeCleaner struct {
	result CleanupResult
}

func (f *fakeCleaner) CleanupTokens(ctx context.Context) CleanupResult { return f.result }

// testEnv bundles a Service wired to fakes over a temp directory tree.
type testEnv struct {
	svc     *Service
	eng     *fakeEngine
	rt      *fakeRuntime
	store   *fakeStore
	cleaner *fakeCleaner

	engineDataDir string
	externalDisk  string
	now           time.Time
}

func newTestEnv(t *testing.T, eng *fakeEngine, now time.Time) *testEnv {
	t.Helper()

	tmp := t.TempDir()
	engineDataDir := filepath.Join(tmp, "engine")
	externalDisk := filepath.Join(tmp, "cold")

	if err := os.MkdirAll(filepath.Join(engineDataDir, eng.table), 0755); err != nil {
		t.Fatalf("mkdir engine data dir: %v", err)
	}
	if err := os.MkdirAll(externalDisk, 0755); err != nil {
		t.Fatalf("mkdir external disk: %v", err)
	}

	cfg := DefaultTieringConfig()
	cfg.ExternalDiskPath = externalDisk

	env := &testEnv{
		eng:           eng,
		rt:            newFakeRuntime(),
		store:         &fakeStore{cfg: cfg},
		cleaner:       &fakeCleaner{},
		engineDataDir: engineDataDir,
		externalDisk:  externalDisk,
		now:           now,
	}

	env.svc = NewService(Options{
		Store:         env.store,
		Cleaner:       env.cleaner,
		Engine:        eng,
		EngineRuntime: env.rt,
		DBRuntime:     env.rt,
		EngineDataDir: engineDataDir,
		HotDiskPath:   tmp,
		DumpCommand:   []string{"pg_dump", "-U", "egibi", "-Fc", "egibi"},
		Now:           func() time.Time { return env.now },
	})

	return env
}

// addDetachedFiles creates the on-disk representation of a detached
// partition inside the engine's storage area.
func (e *testEnv) addDetachedFiles(t *testing.T, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(e.engineDataDir, e.eng.table, name+".detached")
	for file, content := range files {
		path := filepath.Join(dir, file)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

// addArchive creates an archived partition directory on the external disk.
func (e *testEnv) addArchive(t *testing.T, name string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(e.externalDisk, archiveSubdir, e.eng.table+"_"+name)
	for file, content := range files {
		path := filepath.Join(dir, file)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return dir
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return ts
}
