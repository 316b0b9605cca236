package usecase

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/semmidev/dbbackup/internal/adapter/database"
	"github.com/semmidev/dbbackup/internal/adapter/repository"
	"github.com/semmidev/dbbackup/internal/adapter/storage"
	"github.com/semmidev/dbbackup/internal/domain"
	"github.com/semmidev/dbbackup/internal/infrastructure/process"
	"github.com/semmidev/dbbackup/internal/infrastructure/worker"
)

type testLogger struct{}

func (testLogger) Infof(string, ...interface{}) {}
func (testLogger) Errorf(string, ...interface{}) {}
func (testLogger) Warnf(string, ...interface{}) {}

// steppingClock advances one second per call so consecutive runs get distinct filenames.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// versionedDB pins the reported server version.
type versionedDB struct {
	*database.PostgreSQL
}

func (versionedDB) Version(context.Context) string { return "16.2" }

const (
	dumpOK   = `echo "-- PostgreSQL database dump"; sleep 0.05; echo "CREATE TABLE t ();"`
	dumpFail = `echo "pg_dump: error: connection to server failed" >&2; exit 1`
	dumpSlow = `echo "-- PostgreSQL database dump"; exec sleep 5`
)

type fixture struct {
	dir       string
	store     *repository.Store
	pool      *worker.Pool
	backup    *Backup
	restore   *Restore
	psqlCalls string
	targets   map[domain.Environment]Target
}

func writeScript(t *testing.T, dir, name, body string) string {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// newFixture wires the orchestrator to a SQLite store in memory and shell
// scripts standing in for pg_dump and psql.
func newFixture(t *testing.T, dumpBody string, timeout time.Duration) *fixture {
	dir := t.TempDir()
	store, err := repository.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	calls := filepath.Join(dir, "psql.calls")
	tools := database.Tools{
		PgDump: writeScript(t, dir, "pg_dump", dumpBody),
		Psql:   writeScript(t, dir, "psql", `echo "$@" >> `+calls),
	}
	runner := process.NewRunner()

	var targets []Target
	byEnv := map[domain.Environment]Target{}
	for _, env := range []domain.Environment{domain.EnvLocal, domain.EnvProduction} {
		local, err := storage.NewLocal(filepath.Join(dir, string(env)))
		if err != nil {
			t.Fatalf("local storage: %v", err)
		}
		pg := database.NewPostgreSQL(string(env), domain.ConnectionDescriptor{
			Host: "127.0.0.1", Port: 5432, Username: "postgres", Password: "pw", Database: "shop",
		}, tools, runner)
		target := Target{Environment: env, Database: versionedDB{pg}, Storage: local}
		targets = append(targets, target)
		byEnv[env] = target
	}

	pool := worker.New(2, 0)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool.Shutdown(ctx)
	})

	tracker := NewTracker(store, 10*time.Millisecond, 10, testLogger{})
	backup := NewBackup(targets, store, store, pool, tracker, nil, nil, testLogger{}, bangkok, timeout)
	clock := &steppingClock{now: time.Date(2025, 6, 3, 7, 0, 0, 0, time.UTC)}
	backup.now = clock.Now

	return &fixture{
		dir:       dir,
		store:     store,
		pool:      pool,
		backup:    backup,
		restore:   NewRestore(backup, nil, testLogger{}, timeout),
		psqlCalls: calls,
		targets:   byEnv,
	}
}

// waitTerminal polls until the record leaves in_progress.
func (f *fixture) waitTerminal(t *testing.T, id string) *domain.BackupRecord {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := f.store.GetBackup(context.Background(), id)
		if err != nil {
			t.Fatalf("get backup: %v", err)
		}
		if rec.IsTerminal() {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("backup %s did not finish", id)
	return nil
}

func (f *fixture) path(env domain.Environment, filename string) string {
	return f.targets[env].Storage.GetPath(filename)
}

func strPtr(s string) *string { return &s }
