package shortcode

import (
	"regexp"
	"testing"
)

func TestValid(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"abc", true},
		{"promo", true},
		{"my-link-1", true},
		{"a1b2c3", true},
		{"ab", false},                      // too short
		{"-abc", false},                    // leading hyphen
		{"abc-", false},                    // trailing hyphen
		{"ABC", false},                     // not normalized
		{"ha s", false},                    // whitespace
		{"under_score", false},             // underscore
		{"exactly-twenty-char", true},      // 19 chars
		{"this-code-is-way-too-long", false}, // over 20
	}

	for _, tc := range cases {
		if got := Valid(tc.code, 3, 20); got != tc.want {
			t.Errorf("Valid(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  Promo-X "); got != "promo-x" {
		t.Fatalf("Normalize = %q", got)
	}
}

func TestIsReserved(t *testing.T) {
	if !IsReserved("ADMIN", DefaultReserved) {
		t.Fatal("reserved check must be case insensitive")
	}
	if IsReserved("promo", DefaultReserved) {
		t.Fatal("promo is not reserved")
	}
}

func TestGenerate(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z0-9]+$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := Generate(7)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if len(code) != 7 {
			t.Fatalf("expected length 7, got %q", code)
		}
		if !pattern.MatchString(code) {
			t.Fatalf("code %q outside alphabet", code)
		}
		seen[code] = true
	}
	// 100 draws from 36^7 should essentially never collide.
	if len(seen) < 99 {
		t.Fatalf("suspiciously many collisions: %d unique of 100", len(seen))
	}
}
