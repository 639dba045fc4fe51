package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/domain"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/store/memory"
)

func newTestAuth(t *testing.T) *AuthManager {
	t.Helper()
	return NewAuthManager(memory.New(), "test-secret-key-0123456789abcdef", time.Hour, nil)
}

func TestLoginAndParseToken(t *testing.T) {
	auth := newTestAuth(t)

	token, resp, err := auth.Login(context.Background(), "admin", "admin123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", resp.Role)
	}

	actor, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginNormalizesUsername(t *testing.T) {
	auth := newTestAuth(t)

	if _, _, err := auth.Login(context.Background(), "  ADMIN ", "admin123"); err != nil {
		t.Fatalf("expected case-insensitive login to succeed, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newTestAuth(t)

	if _, _, err := auth.Login(context.Background(), "admin", "nope"); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	if _, _, err := auth.Login(context.Background(), "ghost", "admin123"); err == nil {
		t.Fatalf("expected unknown user to fail")
	}
	if _, _, err := auth.Login(context.Background(), "", ""); err == nil {
		t.Fatalf("expected empty credentials to fail")
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	auth := newTestAuth(t)
	token, _, err := auth.Login(context.Background(), "admin", "admin123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := auth.ParseToken(token + "x"); err == nil {
		t.Fatalf("expected tampered token to fail")
	}

	other := NewAuthManager(memory.New(), "another-secret-key-0123456789abcd", time.Hour, nil)
	if _, err := other.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with a different secret to fail")
	}
}

func TestBootstrapUpgradesPlaintextPasswords(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	if err := repo.CreateUser(ctx, domain.UserAccount{
		Username: "legacy",
		Password: "plain-password",
		Role:     domain.RoleStaff,
		Active:   true,
	}); err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	auth := NewAuthManager(repo, "test-secret-key-0123456789abcdef", time.Hour, nil)
	if err := auth.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	users, err := repo.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	for _, user := range users {
		if !isPasswordHash(user.Password) {
			t.Fatalf("expected %s password to be hashed, got %q", user.Username, user.Password)
		}
	}

	// The original plaintext still logs in after the upgrade.
	if _, _, err := auth.Login(ctx, "legacy", "plain-password"); err != nil {
		t.Fatalf("legacy login after upgrade failed: %v", err)
	}
}

func TestCreateStaffHashesPassword(t *testing.T) {
	repo := memory.New()
	auth := NewAuthManager(repo, "test-secret-key-0123456789abcdef", time.Hour, nil)
	ctx := context.Background()

	staff, err := auth.CreateStaff(ctx, domain.StaffCreateRequest{Username: "Fanta", Password: "longenough8"})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if staff.Username != "fanta" {
		t.Fatalf("expected lowercased username, got %q", staff.Username)
	}
	if staff.Role != domain.RoleStaff {
		t.Fatalf("expected staff role, got %q", staff.Role)
	}

	users, err := repo.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	for _, user := range users {
		if user.Username == "fanta" && strings.Contains(user.Password, "longenough8") {
			t.Fatalf("staff password stored in plaintext")
		}
	}

	if _, _, err := auth.Login(ctx, "fanta", "longenough8"); err != nil {
		t.Fatalf("staff login failed: %v", err)
	}
}

func TestCreateStaffValidation(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.CreateStaff(ctx, domain.StaffCreateRequest{Username: "ab", Password: "longenough8"}); err == nil {
		t.Fatalf("expected short username to fail")
	}
	if _, err := auth.CreateStaff(ctx, domain.StaffCreateRequest{Username: "valid", Password: "short"}); err == nil {
		t.Fatalf("expected short password to fail")
	}
	if _, err := auth.CreateStaff(ctx, domain.StaffCreateRequest{Username: "admin", Password: "longenough8"}); err == nil {
		t.Fatalf("expected duplicate username to fail")
	}
}
