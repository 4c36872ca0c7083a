package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "cards.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	store, err := OpenStore(context.Background(), driverSQLite, dsn, WithTxRetry(3, time.Millisecond))
	require.NoError(t, err, "opening sqlite store")
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()), "migrating sqlite store")
	return store
}

func givenUser(t *testing.T, store *Store, email string, isAdmin bool) User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), email, "x", email[:len(email)-len("@example.com")], isAdmin)
	require.NoError(t, err, "creating user %s", email)
	return u
}

type fixture struct {
	store *Store
	svc   *Service
	owner User
	other User
	admin User
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	store := newTestStore(t)
	f := &fixture{
		store: store,
		owner: givenUser(t, store, "owner@example.com", false),
		other: givenUser(t, store, "other@example.com", false),
		admin: givenUser(t, store, "admin@example.com", true),
	}
	f.svc = NewService(store, testLogger(), opts...)
	return f
}

func as(u User) Identity { return Identity{UserID: u.ID} }

func (f *fixture) givenCard(t *testing.T, owner User, in CardInput) Card {
	t.Helper()
	c, err := f.svc.CreateCard(context.Background(), as(owner), in)
	require.NoError(t, err, "creating card %q", in.Title)
	return c
}
