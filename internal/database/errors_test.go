package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestWrapErrorPassthrough(t *testing.T) {
	for _, e := range []error{
		fmt.Errorf("foo"),
		errors.New("bar"),
	} {
		if err := WrapError(e, "missing"); err != e {
			t.Errorf("WrapError(%v) => %v, want %v", e, err, e)
		}
	}
	if WrapError(nil, "missing") != nil {
		t.Error("WrapError(nil) should be nil")
	}
}

func TestWrapErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"no rows", pgx.ErrNoRows, apperr.KindNotFound},
		{"wrapped no rows", fmt.Errorf("get: %w", pgx.ErrNoRows), apperr.KindNotFound},
		{"unique", &pgconn.PgError{Code: "23505"}, apperr.KindConflict},
		{"foreign key", &pgconn.PgError{Code: "23503"}, apperr.KindBadRequest},
		{"bad uuid", &pgconn.PgError{Code: "22P02"}, apperr.KindNotFound},
		{"other pg error", &pgconn.PgError{Code: "57014"}, apperr.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apperr.KindOf(WrapError(tt.err, "Key result not found")); got != tt.want {
				t.Errorf("kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapErrorNotFoundMessage(t *testing.T) {
	e, ok := apperr.As(WrapError(pgx.ErrNoRows, "Objective not found"))
	if !ok || e.Message != "Objective not found" {
		t.Fatalf("unexpected error %v", e)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})) {
		t.Error("expected unique violation")
	}
	if IsUniqueViolation(errors.New("nope")) {
		t.Error("plain error is not a unique violation")
	}
}
