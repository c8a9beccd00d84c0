package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UserID: "user_1",
		Email:  "alice@example.com",
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != "user_1" {
		t.Errorf("UserID = %q, want %q", got.UserID, "user_1")
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", got.Email, "alice@example.com")
	}
	if UserID(ctx) != "user_1" {
		t.Errorf("UserID(ctx) = %q", UserID(ctx))
	}
	if Email(ctx) != "alice@example.com" {
		t.Errorf("Email(ctx) = %q", Email(ctx))
	}
}

func TestFromContextEmpty(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected no AuthContext in empty context")
	}
	if UserID(context.Background()) != "" {
		t.Error("expected empty UserID for empty context")
	}
}
