package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
)

func TestAdmin_BulkDelete(t *testing.T) {
	repo := newFakeRepo()
	repo.links["one1"] = &model.Link{Code: "one1", Destination: "https://a.example"}
	repo.links["two2"] = &model.Link{Code: "two2", Destination: "https://b.example"}
	c := newFakeCache()
	c.entries["one1"] = "https://a.example"
	m := newFakeMembership()
	m.codes["one1"] = struct{}{}
	m.codes["two2"] = struct{}{}

	admin := NewAdmin(AdminDeps{Repo: repo, Cache: c, Membership: m})

	deleted, notFound, err := admin.BulkDelete(context.Background(), []string{"one1", "TWO2", "missing"})
	if err != nil {
		t.Fatalf("BulkDelete returned error: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deletions, got %d", deleted)
	}
	if len(notFound) != 1 || notFound[0] != "missing" {
		t.Fatalf("expected [missing], got %v", notFound)
	}
	if c.has("one1") || m.has("one1") || m.has("two2") {
		t.Fatal("cache and membership traces must be purged")
	}
	if len(repo.links) != 0 {
		t.Fatalf("expected all rows deleted, %d remain", len(repo.links))
	}
}

func TestAdmin_BulkDelete_Empty(t *testing.T) {
	admin := NewAdmin(AdminDeps{Repo: newFakeRepo(), Cache: newFakeCache(), Membership: newFakeMembership()})

	deleted, notFound, err := admin.BulkDelete(context.Background(), nil)
	if err != nil || deleted != 0 || notFound != nil {
		t.Fatalf("expected no-op, got %d %v %v", deleted, notFound, err)
	}
}

func TestAdmin_Stats(t *testing.T) {
	repo := newFakeRepo()
	repo.links["known1"] = &model.Link{
		Code:        "known1",
		Destination: "https://a.example",
		ClickCount:  5,
		MaxClicks:   10,
	}
	admin := NewAdmin(AdminDeps{Repo: repo})

	stats, err := admin.Stats(context.Background(), "KNOWN1")
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Code != "known1" || stats.ClickCount != 5 || stats.MaxClicks != 10 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if _, err := admin.Stats(context.Background(), "missing"); !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}
