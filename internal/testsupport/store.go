package testsupport

import (
	"context"
	"testing"

	"embysub/internal/config"
	"embysub/internal/store"
)

// MustOpenStore opens the request store for the config and closes it on cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// MustUser inserts or refreshes a user.
func MustUser(t testing.TB, st *store.Store, id, name string, role store.Role) *store.User {
	t.Helper()

	user, err := st.UpsertUser(context.Background(), id, name, role)
	if err != nil {
		t.Fatalf("UpsertUser(%s): %v", id, err)
	}
	return user
}

// MustRequest inserts a request for tmdbID owned by userID and moves it to status.
func MustRequest(t testing.TB, st *store.Store, userID, tmdbID string, season *int, status store.Status) *store.Request {
	t.Helper()

	ctx := context.Background()
	req, err := st.InsertRequest(ctx, &store.Request{
		UserID:         userID,
		TMDBID:         tmdbID,
		MediaType:      "movie",
		Title:          "Title " + tmdbID,
		SpecificSeason: season,
	})
	if err != nil {
		t.Fatalf("InsertRequest(%s): %v", tmdbID, err)
	}
	if status != "" && status != store.StatusPending {
		id := req.ID
		req, err = st.SetStatus(ctx, id, status)
		if err != nil || req == nil {
			t.Fatalf("SetStatus(%d, %s): %v", id, status, err)
		}
	}
	return req
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
