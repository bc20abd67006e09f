package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"merceria/backend/internal/domain"
)

type fakeUserStore struct {
	users    []domain.UserAccount
	upgraded map[string]string
}

func (f *fakeUserStore) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	return f.users, nil
}

func (f *fakeUserStore) UpdateUserPassword(_ context.Context, username string, password string) error {
	if f.upgraded == nil {
		f.upgraded = make(map[string]string)
	}
	f.upgraded[username] = password
	return nil
}

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	hash, err := HashPassword("secret123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store := &fakeUserStore{users: []domain.UserAccount{
		{Username: "ana", Password: hash, Role: "admin", Active: true, CreatedAt: time.Now().UTC()},
	}}
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, store)

	resp, err := auth.Login(domain.LoginRequest{Username: "Ana", Password: "secret123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != "admin" || resp.AccessToken == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.Username != "ana" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	hash, _ := HashPassword("secret123")
	store := &fakeUserStore{users: []domain.UserAccount{
		{Username: "ana", Password: hash, Role: "staff", Active: false},
	}}
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, store)

	if _, err := auth.Login(domain.LoginRequest{Username: "ana", Password: "secret123"}); err == nil {
		t.Fatal("expected rejection for inactive account")
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	hash, _ := HashPassword("secret123")
	store := &fakeUserStore{users: []domain.UserAccount{
		{Username: "ana", Password: hash, Role: "staff", Active: true},
	}}
	issuer := NewAuthManager("issuer-secret-0123456789abcdef!!", time.Hour, store)
	verifier := NewAuthManager("other-secret-0123456789abcdef!!!", time.Hour, store)

	resp, err := issuer.Login(domain.LoginRequest{Username: "ana", Password: "secret123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("expected rejection for token signed with another secret")
	}
}

func TestBootstrapUpgradesPlaintextPasswords(t *testing.T) {
	store := &fakeUserStore{users: []domain.UserAccount{
		{Username: "legacy", Password: "plaintext-pass", Role: "staff", Active: true},
	}}
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, store)

	upgraded, ok := store.upgraded["legacy"]
	if !ok {
		t.Fatal("expected the plaintext password to be upgraded in the store")
	}
	if !strings.HasPrefix(upgraded, "$2") {
		t.Fatalf("upgraded password is not a bcrypt hash: %q", upgraded)
	}

	// The original plaintext still logs in against the upgraded hash.
	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plaintext-pass"}); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}
}
