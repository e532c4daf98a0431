package auth

import (
	"context"
	"testing"
)

func TestGetClaims_Present(t *testing.T) {
	want := validTestClaims()
	ctx := context.WithValue(context.Background(), ClaimsKey, want)

	got, ok := GetClaims(ctx)
	if !ok {
		t.Fatal("expected claims in context")
	}
	if got.Subject != "user-123" {
		t.Errorf("expected Subject 'user-123', got %q", got.Subject)
	}
}

func TestGetClaims_Absent(t *testing.T) {
	if _, ok := GetClaims(context.Background()); ok {
		t.Error("expected no claims in empty context")
	}
}

func TestGetToken(t *testing.T) {
	ctx := context.WithValue(context.Background(), TokenKey, "raw-token")

	token, ok := GetToken(ctx)
	if !ok || token != "raw-token" {
		t.Errorf("expected raw-token, got %q (ok=%v)", token, ok)
	}

	if _, ok := GetToken(context.Background()); ok {
		t.Error("expected no token in empty context")
	}
}
