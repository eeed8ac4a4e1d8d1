package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/inkpost/inkpost/internal/model"
	"github.com/inkpost/inkpost/internal/store"
)

func TestAccounts(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	account := model.Account{Username: "first-writer", Email: "first@example.com", PasswordHash: "hash-1"}
	if err := st.CreateAccount(ctx, &account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if !store.ValidID(account.ID) {
		t.Fatalf("expected object id, got %q", account.ID)
	}

	got, err := st.GetAccountByUsername(ctx, "first-writer")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if got.ID != account.ID || got.PasswordHash != "hash-1" || got.Email != "first@example.com" {
		t.Fatalf("unexpected account: %+v", got)
	}

	byID, err := st.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.Username != "first-writer" {
		t.Fatalf("unexpected username: %s", byID.Username)
	}

	if _, err := st.GetAccountByUsername(ctx, "nobody-here"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.GetAccount(ctx, "not-an-id"); !errors.Is(err, store.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestDuplicateUsername(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	first := model.Account{Username: "same-name", Email: "a@example.com", PasswordHash: "hash-a"}
	if err := st.CreateAccount(ctx, &first); err != nil {
		t.Fatalf("create account: %v", err)
	}
	second := model.Account{Username: "same-name", Email: "b@example.com", PasswordHash: "hash-b"}
	err := st.CreateAccount(ctx, &second)
	if err != store.ErrDuplicateUsername {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}

	got, err := st.GetAccountByUsername(ctx, "same-name")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.ID != first.ID || got.Email != "a@example.com" || got.PasswordHash != "hash-a" {
		t.Fatalf("first account changed: %+v", got)
	}
}
