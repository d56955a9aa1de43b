package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert user: %w", &pgconn.PgError{Code: "23505", ConstraintName: "users_email_lower_key"})
	name, ok := UniqueViolation(err)
	if !ok {
		t.Fatal("expected unique violation to be detected through wrapping")
	}
	if name != "users_email_lower_key" {
		t.Errorf("constraint = %q", name)
	}

	if _, ok := UniqueViolation(&pgconn.PgError{Code: "23503"}); ok {
		t.Error("foreign key violation reported as unique violation")
	}
	if _, ok := UniqueViolation(errors.New("boom")); ok {
		t.Error("plain error reported as unique violation")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Error("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(errors.New("other")) {
		t.Error("unexpected match")
	}
}
