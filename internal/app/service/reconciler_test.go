package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/sifan077/PowerLink/internal/app/model"
)

func seedLinks(repo *fakeRepo, now time.Time) {
	past := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)
	repo.links["live1"] = &model.Link{Code: "live1", Destination: "https://a.example", ExpiresAt: &future}
	repo.links["live2"] = &model.Link{Code: "live2", Destination: "https://b.example"}
	repo.links["dead1"] = &model.Link{Code: "dead1", Destination: "https://c.example", ExpiresAt: &past}
}

func TestReconciler_PurgesExpiredKeepsRows(t *testing.T) {
	now := time.Now()
	repo := newFakeRepo()
	seedLinks(repo, now)
	c := newFakeCache()
	c.entries["live1"] = "https://a.example"
	c.entries["dead1"] = "https://c.example" // drifted entry
	m := newFakeMembership()

	r := NewReconciler(ReconcilerDeps{Repo: repo, Cache: c, Membership: m})
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	if c.has("dead1") {
		t.Fatal("expired cache entry must be purged")
	}
	if !c.has("live1") {
		t.Fatal("live cache entry must survive reconciliation")
	}
	if _, ok := repo.links["dead1"]; !ok {
		t.Fatal("expired row must be retained so the code stays reserved")
	}
	// The rebuilt membership covers the full durable code list, expired
	// rows included.
	for _, code := range []string{"live1", "live2", "dead1"} {
		if !m.has(code) {
			t.Fatalf("membership set missing %q after rebuild", code)
		}
	}
}

func TestReconciler_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	seedLinks(repo, time.Now())
	m := newFakeMembership()
	r := NewReconciler(ReconcilerDeps{Repo: repo, Cache: newFakeCache(), Membership: m})

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(m.rebuilds) != 2 {
		t.Fatalf("expected 2 rebuilds, got %d", len(m.rebuilds))
	}
	first := append([]string(nil), m.rebuilds[0]...)
	second := append([]string(nil), m.rebuilds[1]...)
	sort.Strings(first)
	sort.Strings(second)
	if len(first) != len(second) {
		t.Fatalf("membership drifted between identical runs: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("membership drifted between identical runs: %v vs %v", first, second)
		}
	}
}

func TestReconciler_PerRecordFailureDoesNotAbort(t *testing.T) {
	repo := newFakeRepo()
	seedLinks(repo, time.Now())
	c := newFakeCache()
	c.delErr = errors.New("redis hiccup")
	m := newFakeMembership()
	r := NewReconciler(ReconcilerDeps{Repo: repo, Cache: c, Membership: m})

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("a per-record failure must not abort the pass: %v", err)
	}
	if len(m.rebuilds) != 1 {
		t.Fatal("the rebuild must still happen after record failures")
	}
}

func TestReconciler_DeleteExpiredRows(t *testing.T) {
	repo := newFakeRepo()
	seedLinks(repo, time.Now())
	c := newFakeCache()
	c.entries["dead1"] = "https://c.example"
	m := newFakeMembership()
	r := NewReconciler(ReconcilerDeps{
		Repo:          repo,
		Cache:         c,
		Membership:    m,
		DeleteExpired: true,
	})

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	if _, ok := repo.links["dead1"]; ok {
		t.Fatal("expired row must be deleted when the administrative flag is set")
	}
	if c.has("dead1") {
		t.Fatal("cache trace must be purged before the durable delete")
	}
	if m.has("dead1") {
		t.Fatal("deleted code must leave the membership set")
	}
	if _, ok := repo.links["live1"]; !ok {
		t.Fatal("live rows must be untouched")
	}
}

func TestReconciler_CancelledContextStopsPass(t *testing.T) {
	repo := newFakeRepo()
	seedLinks(repo, time.Now())
	r := NewReconciler(ReconcilerDeps{Repo: repo, Cache: newFakeCache(), Membership: newFakeMembership()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReconciler_StartStop(t *testing.T) {
	repo := newFakeRepo()
	r := NewReconciler(ReconcilerDeps{
		Repo:       repo,
		Cache:      newFakeCache(),
		Membership: newFakeMembership(),
		Interval:   10 * time.Millisecond,
	})

	r.Start()
	time.Sleep(35 * time.Millisecond)
	r.Stop()

	repo.mu.Lock()
	runs := repo.listCodeCalls
	repo.mu.Unlock()
	if runs == 0 {
		t.Fatal("expected at least one timed reconciliation pass")
	}
}
