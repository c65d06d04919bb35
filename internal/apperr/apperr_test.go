package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindBadRequest, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindGone, http.StatusGone},
		{KindInternal, http.StatusInternalServerError},
		{Kind(99), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.kind.Status(); got != tt.want {
			t.Errorf("%v.Status() = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("loading objective: %w", NotFound("Objective not found"))

	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected wrapped NotFound to match ErrNotFound")
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatal("NotFound must not match ErrForbidden")
	}
	if KindOf(err) != KindNotFound {
		t.Errorf("KindOf = %v, want not_found", KindOf(err))
	}
}

func TestKindOfUntyped(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Errorf("KindOf(untyped) = %v, want internal", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Wrap(KindConflict, "Already a member", cause)

	if !errors.Is(err, cause) {
		t.Error("expected Wrap to expose the cause")
	}
	if err.Error() != "Already a member: duplicate key" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
