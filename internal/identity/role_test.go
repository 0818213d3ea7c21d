package identity

import (
	"context"
	"errors"
	"testing"

	"beaconhealth.org/internal/apperr"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"patient":   Patient,
		" Provider": Provider,
		"ADMIN":     Admin,
	}
	for in, want := range cases {
		got, err := ParseRole("role", in)
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseRole(%q)=%q, want %q", in, got, want)
		}
	}
	for _, bad := range []string{"", "nurse"} {
		if _, err := ParseRole("role", bad); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("ParseRole(%q) expected validation error, got %v", bad, err)
		}
	}
}

func TestActorContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := ActorFromContext(ctx); ok {
		t.Fatal("expected no actor on empty context")
	}
	if got := ContextWithActor(ctx, Actor{}); got != ctx {
		t.Fatal("zero actor should not be stored")
	}
	ctx = ContextWithActor(ctx, Actor{Role: Provider, ID: "Dr. Smith"})
	a, ok := ActorFromContext(ctx)
	if !ok || a.Role != Provider || a.ID != "Dr. Smith" {
		t.Fatalf("unexpected actor: %+v", a)
	}
}
