package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sifan077/PowerLink/internal/app/model"
	"golang.org/x/crypto/bcrypt"
)

func digestOf(t *testing.T, password string) string {
	t.Helper()
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	return string(digest)
}

func strPtr(s string) *string { return &s }

func TestAccessPolicy_PasswordRequired(t *testing.T) {
	p := NewAccessPolicy(nil, newFakeClickCounter())
	link := &model.Link{Code: "gated", PasswordDigest: digestOf(t, "open-sesame")}

	d := p.Evaluate(context.Background(), link, nil)
	if d.Allowed || d.Reason != ReasonPasswordRequired {
		t.Fatalf("expected password_required, got %+v", d)
	}
	if d.Destination != "" {
		t.Fatal("destination must not leak on a denied evaluation")
	}
}

func TestAccessPolicy_PasswordIncorrect(t *testing.T) {
	p := NewAccessPolicy(nil, newFakeClickCounter())
	link := &model.Link{Code: "gated", PasswordDigest: digestOf(t, "open-sesame")}

	d := p.Evaluate(context.Background(), link, strPtr("wrong"))
	if d.Allowed || d.Reason != ReasonPasswordIncorrect {
		t.Fatalf("expected password_incorrect, got %+v", d)
	}
}

func TestAccessPolicy_PasswordCorrect(t *testing.T) {
	clicks := newFakeClickCounter()
	p := NewAccessPolicy(nil, clicks)
	link := &model.Link{
		Code:           "gated",
		Destination:    "https://example.com/secret",
		PasswordDigest: digestOf(t, "open-sesame"),
	}

	d := p.Evaluate(context.Background(), link, strPtr("open-sesame"))
	if !d.Allowed || d.Reason != ReasonOK {
		t.Fatalf("expected allowed, got %+v", d)
	}
	if d.Destination != "https://example.com/secret" {
		t.Fatalf("expected destination, got %q", d.Destination)
	}
	if clicks.calls != 1 {
		t.Fatalf("expected one click increment, got %d", clicks.calls)
	}
}

func TestAccessPolicy_LimitReachedAdvisory(t *testing.T) {
	clicks := newFakeClickCounter()
	clicks.maxClicks["limited"] = 1
	p := NewAccessPolicy(nil, clicks)
	link := &model.Link{Code: "limited", Destination: "https://example.com", MaxClicks: 1}

	// The click that spends the last slot is still served.
	d := p.Evaluate(context.Background(), link, nil)
	if !d.Allowed {
		t.Fatalf("expected allowed, got %+v", d)
	}
	if !d.LimitReached || d.Reason != ReasonLimitReached {
		t.Fatalf("expected limit_reached flag, got %+v", d)
	}
}

func TestAccessPolicy_IncrementFailureSwallowed(t *testing.T) {
	clicks := newFakeClickCounter()
	clicks.err = errors.New("store down")
	p := NewAccessPolicy(nil, clicks)
	link := &model.Link{Code: "plain", Destination: "https://example.com"}

	d := p.Evaluate(context.Background(), link, nil)
	if !d.Allowed || d.Reason != ReasonOK {
		t.Fatalf("a bookkeeping failure must never block access, got %+v", d)
	}
	if d.LimitReached {
		t.Fatal("limit flag must not be set when the increment failed")
	}
}

func TestAccessPolicy_UngatedCountsClick(t *testing.T) {
	clicks := newFakeClickCounter()
	p := NewAccessPolicy(nil, clicks)
	link := &model.Link{Code: "plain", Destination: "https://example.com"}

	d := p.Evaluate(context.Background(), link, nil)
	if !d.Allowed {
		t.Fatalf("expected allowed, got %+v", d)
	}
	if clicks.clicks["plain"] != 1 {
		t.Fatalf("expected click recorded, got %d", clicks.clicks["plain"])
	}
}
