package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisRuleSetsCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewRedisRuleSets(testRedis(t))

	if _, err := s.Get(ctx, "alice", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}

	rs := sampleRuleSet("alice", "rs-1")
	if err := s.Put(ctx, rs); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "alice", "rs-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "sample" || got.IPRule == nil || got.IPRule.CIDRs[0] != "10.0.0.0/8" {
		t.Errorf("round trip lost fields: %+v", got)
	}

	if err := s.Delete(ctx, "alice", "rs-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "alice", "rs-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete = %v, want ErrNotFound", err)
	}
}

func TestRedisRuleSetsOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewRedisRuleSets(testRedis(t))
	if err := s.Put(ctx, sampleRuleSet("alice", "rs-1")); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get(ctx, "bob", "rs-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-owner Get = %v, want ErrNotFound", err)
	}
	list, err := s.ListByOwner(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("bob sees %d rule sets", len(list))
	}
}

func TestRedisRuleSetsListAndCount(t *testing.T) {
	ctx := context.Background()
	s := NewRedisRuleSets(testRedis(t))
	for i := 0; i < 3; i++ {
		if err := s.Put(ctx, sampleRuleSet("alice", fmt.Sprintf("rs-%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Put(ctx, sampleRuleSet("bob", "rs-b")); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Errorf("alice list = %d, want 3", len(list))
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("Count = %d, want 4", n)
	}
}

func TestRedisLogs(t *testing.T) {
	ctx := context.Background()
	s := NewRedisLogs(testRedis(t))

	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, "alice", sampleEntry(fmt.Sprintf("e-%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListByOwner(ctx, "alice", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != "e-2" || got[2].ID != "e-4" {
		t.Errorf("limited list wrong: got %d entries", len(got))
	}
	if got[0].Result == nil || got[0].Result.Reason == "" {
		t.Errorf("nested result lost in round trip: %+v", got[0])
	}

	got, _ = s.ListByOwner(ctx, "alice", 0)
	if len(got) != 5 {
		t.Errorf("unlimited list = %d, want 5", len(got))
	}

	if err := s.Clear(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.ListByOwner(ctx, "alice", 0)
	if len(got) != 0 {
		t.Errorf("after clear: %d entries", len(got))
	}
}

func TestRedisLogsCount(t *testing.T) {
	ctx := context.Background()
	s := NewRedisLogs(testRedis(t))
	for i := 0; i < 2; i++ {
		if err := s.Append(ctx, "alice", sampleEntry(fmt.Sprintf("a-%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Append(ctx, "bob", sampleEntry("b-0")); err != nil {
		t.Fatal(err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
}
