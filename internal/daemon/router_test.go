package daemon_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"embysub/internal/api"
	"embysub/internal/config"
	"embysub/internal/daemon"
	"embysub/internal/daemonrun"
	"embysub/internal/logging"
	"embysub/internal/store"
	"embysub/internal/testsupport"
)

type fixture struct {
	cfg     *config.Config
	store   *store.Store
	handler http.Handler
	daemon  *daemon.Daemon
}

func newEmbyServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /Users/AuthenticateByName", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"Username"`
			Pw       string `json:"Pw"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Pw == "bad" {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `{"User":{"Id":"%s-id","Name":"%s","Policy":{"IsAdministrator":%t}},"AccessToken":"x"}`,
			body.Username, body.Username, body.Username == "admin")
	})
	mux.HandleFunc("GET /Items", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("AnyProviderIdEquals") == "Tmdb.550" {
			_, _ = w.Write([]byte(`{"Items":[{"Id":"emby-550","Name":"Fight Club","Type":"Movie","ProviderIds":{"Tmdb":"550"}}],"TotalRecordCount":1}`))
			return
		}
		_, _ = w.Write([]byte(`{"Items":[],"TotalRecordCount":0}`))
	})
	mux.HandleFunc("GET /Items/{id}/Images/Primary", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /trending/all/day", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"page":1,"results":[{"id":550,"media_type":"movie","title":"Fight Club"},{"id":551,"media_type":"movie","title":"Other"}],"total_pages":1}`))
	})
	mux.HandleFunc("GET /movie/{id}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":%s,"title":"Movie %s","external_ids":{"imdb_id":"tt%s"}}`, r.PathValue("id"), r.PathValue("id"), r.PathValue("id"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newFixture(t *testing.T, opts ...func(*config.Config)) *fixture {
	t.Helper()
	embySrv := newEmbyServer(t)
	catalogSrv := newCatalogServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithEmbyURL(embySrv.URL), testsupport.WithTMDBURL(catalogSrv.URL))
	for _, opt := range opts {
		opt(cfg)
	}
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	deps, err := daemonrun.Assemble(cfg, st, logger)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	d, err := daemon.New(cfg, deps, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return &fixture{cfg: cfg, store: st, handler: d.Handler(), daemon: d}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, f.cfg.Server.APIPrefix+path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, username string) string {
	t.Helper()
	form := url.Values{"username": {username}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, f.cfg.Server.APIPrefix+"/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var token api.Token
	decode(t, rec, &token)
	if token.TokenType != "bearer" || token.AccessToken == "" {
		t.Fatalf("unexpected token %+v", token)
	}
	return token.AccessToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectDetail(t *testing.T, rec *httptest.ResponseRecorder, status int, detail string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var resp api.ErrorResponse
	decode(t, rec, &resp)
	if resp.Detail != detail {
		t.Fatalf("detail = %q, want %q", resp.Detail, detail)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api_health", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var msg api.Message
	decode(t, rec, &msg)
	if msg.Message != "Welcome to Emby Subscription Manager API" {
		t.Fatalf("unexpected message %q", msg.Message)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a correlation id header")
	}
}

func TestLoginAndMe(t *testing.T) {
	f := newFixture(t)

	token := f.login(t, "alice")
	rec := f.do(t, http.MethodGet, "/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d", rec.Code)
	}
	var user api.User
	decode(t, rec, &user)
	if user.ID != "alice-id" || user.Role != "user" {
		t.Fatalf("unexpected user %+v", user)
	}

	adminToken := f.login(t, "admin")
	rec = f.do(t, http.MethodGet, "/auth/me", adminToken, nil)
	decode(t, rec, &user)
	if user.Role != "admin" {
		t.Fatalf("expected admin role, got %+v", user)
	}
}

func TestLoginJSONAndFailure(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": "pw"})
	if rec.Code != http.StatusOK {
		t.Fatalf("json login: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": "bad"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad password: status %d", rec.Code)
	}
	var resp api.ErrorResponse
	decode(t, rec, &resp)
	if !strings.HasPrefix(resp.Detail, "Authentication failed: ") {
		t.Fatalf("unexpected detail %q", resp.Detail)
	}

	rec = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": " ", "password": "pw"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank username: status %d", rec.Code)
	}
}

func TestLoginRateLimit(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Server.LoginRateLimit = 2
	})
	body := map[string]string{"username": "bob", "password": "bad"}
	for i := 0; i < 2; i++ {
		if rec := f.do(t, http.MethodPost, "/auth/login", "", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: status %d", i, rec.Code)
		}
	}
	rec := f.do(t, http.MethodPost, "/auth/login", "", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/requests", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/requests", "not-a-token", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d", rec.Code)
	}

	token := f.login(t, "alice")
	if rec := f.do(t, http.MethodGet, "/status", token, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin status: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPut, "/requests/1/approve", token, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin approve: %d", rec.Code)
	}
}

func TestRequestLifecycle(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice")
	admin := f.login(t, "admin")

	rec := f.do(t, http.MethodPost, "/requests", alice, api.CreateRequest{TMDBID: "603", MediaType: "movie", Title: "The Matrix"})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	var created api.Request
	decode(t, rec, &created)
	if created.Status != "pending" || created.UserID != "alice-id" || created.IMDBID != "tt603" {
		t.Fatalf("unexpected request %+v", created)
	}

	rec = f.do(t, http.MethodPost, "/requests", alice, api.CreateRequest{TMDBID: "603", MediaType: "movie"})
	expectDetail(t, rec, http.StatusBadRequest, "Request for this media already exists")

	rec = f.do(t, http.MethodPost, "/requests", alice, api.CreateRequest{TMDBID: "603", MediaType: "person"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid media type: status %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/requests", alice, nil)
	var listed []api.Request
	decode(t, rec, &listed)
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("unexpected list %+v", listed)
	}

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/requests/%d/approve", created.ID), admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: status %d", rec.Code)
	}
	var approved api.Request
	decode(t, rec, &approved)
	if approved.Status != "approved" {
		t.Fatalf("status = %q", approved.Status)
	}

	rec = f.do(t, http.MethodDelete, "/requests/603", alice, nil)
	expectDetail(t, rec, http.StatusBadRequest, "Only pending requests can be cancelled")

	rec = f.do(t, http.MethodPut, "/requests/9999/reject", admin, nil)
	expectDetail(t, rec, http.StatusNotFound, "Request not found")

	rec = f.do(t, http.MethodGet, "/requests?status=bogus", admin, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter: %d", rec.Code)
	}
}

func TestCancelPendingRequest(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice")
	season := 2
	rec := f.do(t, http.MethodPost, "/requests", alice, api.CreateRequest{TMDBID: "1399", MediaType: "tv", SpecificSeason: &season})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: status %d", rec.Code)
	}

	rec = f.do(t, http.MethodDelete, "/requests/1399", alice, nil)
	expectDetail(t, rec, http.StatusNotFound, "Request not found")

	rec = f.do(t, http.MethodDelete, "/requests/1399?season_number=2", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d body %s", rec.Code, rec.Body.String())
	}
	var deleted api.Request
	decode(t, rec, &deleted)
	if deleted.TMDBID != "1399" || deleted.SpecificSeason == nil || *deleted.SpecificSeason != 2 || deleted.Status != "pending" {
		t.Fatalf("unexpected cancelled row %+v", deleted)
	}

	rec = f.do(t, http.MethodGet, "/requests", alice, nil)
	var remaining []api.Request
	decode(t, rec, &remaining)
	if len(remaining) != 0 {
		t.Fatalf("request still listed after cancel: %+v", remaining)
	}
}

func TestMovieDetailsResponse(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice")

	rec := f.do(t, http.MethodGet, "/media/movie/550", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("details: status %d body %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["id"] != float64(550) || body["title"] != "Movie 550" {
		t.Fatalf("unexpected details %v", body)
	}
	if body["status"] != "AVAILABLE" || body["emby_id"] != "emby-550" {
		t.Fatalf("details not annotated: %v", body)
	}

	rec = f.do(t, http.MethodGet, "/media/movie/551", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("details 551: status %d body %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &body)
	if body["status"] != "UNKNOWN" {
		t.Fatalf("status = %v, want UNKNOWN", body["status"])
	}
}

func TestNotificationsInbox(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice")
	bob := f.login(t, "bob")

	req := testsupport.MustRequest(t, f.store, "alice-id", "550", nil, store.StatusApproved)
	if _, err := f.store.CompleteWithNotification(context.Background(), req.ID, "done", "ready"); err != nil {
		t.Fatalf("CompleteWithNotification: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/notifications", alice, nil)
	var inbox []api.Notification
	decode(t, rec, &inbox)
	if len(inbox) != 1 || inbox[0].IsRead {
		t.Fatalf("unexpected inbox %+v", inbox)
	}

	path := fmt.Sprintf("/notifications/%d/read", inbox[0].ID)
	rec = f.do(t, http.MethodPut, path, bob, nil)
	expectDetail(t, rec, http.StatusForbidden, "Not your notification")

	rec = f.do(t, http.MethodPut, path, alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read: status %d", rec.Code)
	}
	var marked api.Notification
	decode(t, rec, &marked)
	if !marked.IsRead {
		t.Fatal("expected notification to be read")
	}

	rec = f.do(t, http.MethodPut, "/notifications/9999/read", alice, nil)
	expectDetail(t, rec, http.StatusNotFound, "Notification not found")
}

func TestTrendingAnnotatesAvailability(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice")
	testsupport.MustRequest(t, f.store, "alice-id", "551", nil, store.StatusPending)

	rec := f.do(t, http.MethodGet, "/media/trending", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("trending: status %d", rec.Code)
	}
	var list api.MediaList
	decode(t, rec, &list)
	if len(list.Results) != 2 {
		t.Fatalf("unexpected results %+v", list.Results)
	}
	if list.Results[0].Status != "AVAILABLE" || list.Results[0].EmbyID != "emby-550" {
		t.Fatalf("first result %+v", list.Results[0])
	}
	if list.Results[1].Status != "PENDING" {
		t.Fatalf("second result status %q", list.Results[1].Status)
	}

	rec = f.do(t, http.MethodGet, "/media/trending?time_window=month", alice, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad window: status %d", rec.Code)
	}
}

func TestEmbyImageProxyIsPublic(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/media/emby-image/emby-550", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("image: status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %q", ct)
	}
	if rec.Body.String() != "png-bytes" {
		t.Fatalf("body %q", rec.Body.String())
	}
}

func TestStatusAndReconcile(t *testing.T) {
	f := newFixture(t)
	admin := f.login(t, "admin")
	testsupport.MustRequest(t, f.store, "admin-id", "550", nil, store.StatusApproved)

	rec := f.do(t, http.MethodPost, "/reconcile", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile: status %d body %s", rec.Code, rec.Body.String())
	}
	var run api.ReconcileRun
	decode(t, rec, &run)
	if run.Checked != 1 || run.Completed != 1 {
		t.Fatalf("unexpected run %+v", run)
	}

	rec = f.do(t, http.MethodGet, "/status", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var status api.DaemonStatus
	decode(t, rec, &status)
	if status.RequestCounts["completed"] != 1 || status.RequestCounts["pending"] != 0 {
		t.Fatalf("unexpected counts %#v", status.RequestCounts)
	}
	if status.Reconcile.LastRun == nil || status.Reconcile.LastRun.Completed != 1 {
		t.Fatalf("unexpected reconcile state %+v", status.Reconcile)
	}
	if status.EmbyBreaker != "closed" {
		t.Fatalf("breaker = %q", status.EmbyBreaker)
	}
	if status.Running {
		t.Fatal("daemon was never started")
	}
}
