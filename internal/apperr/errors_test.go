package apperr

import (
	"errors"
	"testing"
)

func TestValidationErrorUnwraps(t *testing.T) {
	err := Invalid("clinical_score", "must be within [0,5], got %v", 6.1)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "clinical_score" {
		t.Fatalf("expected field clinical_score, got %#v", ve)
	}
}

func TestTransitionErrorMessage(t *testing.T) {
	err := error(&TransitionError{Entity: "prescription", From: "Completed", To: "Active"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition")
	}
	if got := err.Error(); got != "prescription: cannot move from Completed to Active (allowed: none)" {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestNotFoundAndConflict(t *testing.T) {
	if err := NotFound("app", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := Conflict("app name %q taken", "MindfulPath"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
