package schema

import (
	"math"
	"testing"
)

func TestValidateUserID(t *testing.T) {
	cases := []struct {
		name  string
		user  UserID
		valid bool
	}{
		{"simple", "alice", true},
		{"with-dots", "alice.dev", true},
		{"with-underscore", "alice_dev", true},
		{"with-dash", "alice-dev", true},
		{"with-digits", "alice123", true},
		{"empty", "", false},
		{"uppercase", "Alice", false},
		{"space", "alice dev", false},
		{"leading-space", " alice", false},
		{"symbol", "alice@", false},
	}

	for _, tc := range cases {
		err := ValidateUserID(tc.user)
		if tc.valid && err != nil {
			t.Fatalf("case %q expected valid, got error: %v", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Fatalf("case %q expected error, got nil", tc.name)
		}
	}
}

func TestNormalizeViewType(t *testing.T) {
	got, err := NormalizeViewType("  Company-Projects ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != ViewCompanyProjects {
		t.Fatalf("expected %q, got %q", ViewCompanyProjects, got)
	}
	for _, bad := range []string{"", "   ", "tasks!", "a b"} {
		if _, err := NormalizeViewType(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestContextEqual(t *testing.T) {
	if !ContextEqual(nil, ViewContext{}) {
		t.Fatalf("nil and empty contexts should be equal")
	}
	a := ViewContext{"company": "Acme", "project": 7}
	b := ViewContext{"project": 7.0, "company": "Acme"}
	if !ContextEqual(a, b) {
		t.Fatalf("expected key order and numeric form not to matter")
	}
	if ContextEqual(a, ViewContext{"company": "Acme"}) {
		t.Fatalf("expected different contexts to differ")
	}
	nested := ViewContext{"filter": map[string]any{"status": "open"}}
	if !ContextEqual(nested, ViewContext{"filter": map[string]any{"status": "open"}}) {
		t.Fatalf("expected nested maps to compare structurally")
	}
}

func TestContextEqualUnencodable(t *testing.T) {
	nan := ViewContext{"score": math.NaN()}
	if ContextEqual(nan, nil) || ContextEqual(nan, ViewContext{}) {
		t.Fatalf("expected a NaN context to differ from an empty one")
	}
	if ContextEqual(nan, ViewContext{"score": math.Inf(1)}) {
		t.Fatalf("expected NaN and +Inf contexts to differ")
	}
	if got := CanonicalContext(nan); got == "{}" || got[0] != '!' {
		t.Fatalf("unexpected canonical form %q", got)
	}
}

func TestParseContextPairs(t *testing.T) {
	ctx, err := ParseContextPairs([]string{"company=Acme", " team = Blue "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ctx["company"] != "Acme" || ctx["team"] != "Blue" {
		t.Fatalf("unexpected context %+v", ctx)
	}
	if _, err := ParseContextPairs([]string{"novalue"}); err == nil {
		t.Fatalf("expected error for token without '='")
	}
	empty, err := ParseContextPairs(nil)
	if err != nil || empty != nil {
		t.Fatalf("expected nil context, got %+v, %v", empty, err)
	}
}
