package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"
)

type countingSubscriber struct {
	mu    sync.Mutex
	calls int
	last  *Config
	err   error
}

func (s *countingSubscriber) OnConfigReload(newCfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = newCfg
	return s.err
}

func (s *countingSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReloadNotifiesSubscribers(t *testing.T) {
	path := writeConfig(t, "limits:\n  per_ip: 10\n")
	initial, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	r := NewReloader(path, initial, testLogger())
	sub := &countingSubscriber{}
	r.Register(sub)

	if err := os.WriteFile(path, []byte("limits:\n  per_ip: 99\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if sub.count() != 1 {
		t.Errorf("subscriber called %d times, want 1", sub.count())
	}
	if sub.last.Limits.PerIP != 99 {
		t.Errorf("subscriber saw per_ip = %d", sub.last.Limits.PerIP)
	}
	if r.Current().Limits.PerIP != 99 {
		t.Errorf("Current() per_ip = %d", r.Current().Limits.PerIP)
	}
}

func TestReloadNoChangesSkipsSubscribers(t *testing.T) {
	path := writeConfig(t, "limits:\n  per_ip: 10\n")
	initial, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	r := NewReloader(path, initial, testLogger())
	sub := &countingSubscriber{}
	r.Register(sub)

	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}
	if sub.count() != 0 {
		t.Errorf("unchanged config notified subscribers %d times", sub.count())
	}
}

func TestReloadInvalidConfigKeepsCurrent(t *testing.T) {
	path := writeConfig(t, "limits:\n  per_ip: 10\n")
	initial, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	r := NewReloader(path, initial, testLogger())
	if err := os.WriteFile(path, []byte("storage:\n  backend: postgres\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := r.Reload(); err == nil {
		t.Fatal("invalid config must fail the reload")
	}
	if r.Current().Limits.PerIP != 10 {
		t.Errorf("current config replaced on failed reload: %+v", r.Current().Limits)
	}
}

func TestSIGHUPTriggersReload(t *testing.T) {
	path := writeConfig(t, "limits:\n  per_ip: 10\n")
	initial, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	initial.Reload.WatchFile = false

	r := NewReloader(path, initial, testLogger())
	sub := &countingSubscriber{}
	r.Register(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	if err := os.WriteFile(path, []byte("limits:\n  per_ip: 33\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for sub.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("SIGHUP did not trigger a reload")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if r.Current().Limits.PerIP != 33 {
		t.Errorf("per_ip after SIGHUP reload = %d", r.Current().Limits.PerIP)
	}
}

func TestFileWatchTriggersReload(t *testing.T) {
	path := writeConfig(t, "limits:\n  per_ip: 10\nreload:\n  watch_file: true\n  debounce: 50ms\n")
	initial, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	r := NewReloader(path, initial, testLogger())
	sub := &countingSubscriber{}
	r.Register(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	if err := os.WriteFile(path, []byte("limits:\n  per_ip: 77\nreload:\n  watch_file: true\n  debounce: 50ms\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for sub.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("file change did not trigger a reload")
		case <-time.After(20 * time.Millisecond):
		}
	}
	if r.Current().Limits.PerIP != 77 {
		t.Errorf("per_ip after file reload = %d", r.Current().Limits.PerIP)
	}
}
