package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestTokenWithoutCacheRequiresLogin(t *testing.T) {
	m := NewManager("client-id", "consumers", t.TempDir())

	_, err := m.Token(context.Background(), false)
	if !errors.Is(err, ErrAuthRequired) {
		t.Errorf("err = %v, want ErrAuthRequired", err)
	}
}

func TestTokenServedFromDiskCache(t *testing.T) {
	dir := t.TempDir()
	m := NewManager("client-id", "consumers", dir)
	cached := &oauth2.Token{
		AccessToken: "cached-token",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}
	if err := m.saveToken(cached); err != nil {
		t.Fatal(err)
	}

	// A fresh manager simulates a new process picking up the cache.
	fresh := NewManager("client-id", "consumers", dir)
	got, err := fresh.Token(context.Background(), false)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got != "cached-token" {
		t.Errorf("token = %q, want cached token without a network round trip", got)
	}
}

func TestForceRefreshWithoutRefreshTokenFails(t *testing.T) {
	dir := t.TempDir()
	m := NewManager("client-id", "consumers", dir)
	if err := m.saveToken(&oauth2.Token{AccessToken: "t", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	_, err := m.Token(context.Background(), true)
	if !errors.Is(err, ErrAuthRequired) {
		t.Errorf("err = %v, want ErrAuthRequired when no refresh token exists", err)
	}
}
