package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"embysub/internal/store"
	"embysub/internal/testsupport"
)

func TestOpenAppliesMigrationsAndIsReopenable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustUser(t, st, "u1", "alice", store.RoleUser)
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	user, err := reopened.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user == nil || user.Name != "alice" {
		t.Fatalf("expected persisted user, got %#v", user)
	}
}

func TestUpsertUserMirrorsLatestLogin(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first := testsupport.MustUser(t, st, "u1", "alice", store.RoleUser)
	second := testsupport.MustUser(t, st, "u1", "Alice B", store.RoleAdmin)
	if second.Name != "Alice B" || !second.IsAdmin() {
		t.Fatalf("expected name and role to follow latest login, got %#v", second)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("expected created_at to be preserved: %v vs %v", first.CreatedAt, second.CreatedAt)
	}
	if second.LastLogin == nil {
		t.Fatal("expected last login timestamp")
	}

	missing, err := st.GetUser(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing user, got %#v %v", missing, err)
	}
	users, err := st.ListUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("expected one user, got %d %v", len(users), err)
	}
}

func TestInsertRequestEnforcesSeasonKey(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustUser(t, st, "u1", "alice", store.RoleUser)

	whole := testsupport.MustRequest(t, st, "u1", "1399", nil, store.StatusPending)
	if whole.SpecificSeason != nil {
		t.Fatalf("expected whole-series request, got season %v", *whole.SpecificSeason)
	}
	season2 := testsupport.MustRequest(t, st, "u1", "1399", testsupport.IntPtr(2), store.StatusPending)
	if season2.SpecificSeason == nil || *season2.SpecificSeason != 2 {
		t.Fatalf("expected season 2 request, got %#v", season2.SpecificSeason)
	}

	_, err := st.InsertRequest(ctx, &store.Request{UserID: "u1", TMDBID: "1399", MediaType: "tv", Title: "dup"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second whole-series request, got %v", err)
	}
	_, err = st.InsertRequest(ctx, &store.Request{UserID: "u1", TMDBID: "1399", MediaType: "tv", Title: "dup", SpecificSeason: testsupport.IntPtr(2)})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second season request, got %v", err)
	}

	found, err := st.FindByKey(ctx, store.Key{TMDBID: "1399", Season: testsupport.IntPtr(2)})
	if err != nil || found == nil || found.ID != season2.ID {
		t.Fatalf("FindByKey(season 2) = %#v, %v", found, err)
	}
	found, err = st.FindByKey(ctx, store.Key{TMDBID: "1399"})
	if err != nil || found == nil || found.ID != whole.ID {
		t.Fatalf("FindByKey(whole) = %#v, %v", found, err)
	}
	found, err = st.FindByKey(ctx, store.Key{TMDBID: "1399", Season: testsupport.IntPtr(3)})
	if err != nil || found != nil {
		t.Fatalf("expected no season 3 request, got %#v, %v", found, err)
	}
	first, err := st.FirstByCatalogID(ctx, "1399")
	if err != nil || first == nil || first.ID != whole.ID {
		t.Fatalf("FirstByCatalogID = %#v, %v", first, err)
	}
}

func TestConcurrentInsertsYieldOneRow(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.MustUser(t, st, "u1", "alice", store.RoleUser)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.InsertRequest(context.Background(), &store.Request{UserID: "u1", TMDBID: "550", MediaType: "movie", Title: "Fight Club"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, store.ErrDuplicate):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 || duplicates != 7 {
		t.Fatalf("expected 1 insert and 7 duplicates, got %d and %d", successes, duplicates)
	}
}

func TestReviveRequestRequiresRejectedAndOwner(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustUser(t, st, "u1", "alice", store.RoleUser)
	testsupport.MustUser(t, st, "u2", "bob", store.RoleUser)

	rejected := testsupport.MustRequest(t, st, "u1", "550", nil, store.StatusRejected)

	ok, err := st.ReviveRequest(ctx, rejected.ID, &store.Request{UserID: "u2", MediaType: "movie", Title: "x"})
	if err != nil || ok {
		t.Fatalf("expected revive by other user to be refused, got %v %v", ok, err)
	}
	ok, err = st.ReviveRequest(ctx, rejected.ID, &store.Request{UserID: "u1", MediaType: "movie", Title: "Fight Club", Comment: "again please"})
	if err != nil || !ok {
		t.Fatalf("expected revive to succeed, got %v %v", ok, err)
	}
	revived, err := st.GetRequest(ctx, rejected.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if revived.Status != store.StatusPending || revived.Title != "Fight Club" || revived.Comment != "again please" {
		t.Fatalf("unexpected revived request %#v", revived)
	}
	if revived.RequestDate.Before(rejected.RequestDate) {
		t.Fatalf("expected refreshed request date, got %v before %v", revived.RequestDate, rejected.RequestDate)
	}
	ok, err = st.ReviveRequest(ctx, rejected.ID, &store.Request{UserID: "u1", MediaType: "movie", Title: "x"})
	if err != nil || ok {
		t.Fatalf("expected pending request not to be revived, got %v %v", ok, err)
	}
}

func TestListRequestsFiltersAndJoinsUserName(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustUser(t, st, "u1", "alice", store.RoleUser)
	testsupport.MustUser(t, st, "u2", "bob", store.RoleUser)

	testsupport.MustRequest(t, st, "u1", "1", nil, store.StatusPending)
	testsupport.MustRequest(t, st, "u2", "2", nil, store.StatusApproved)
	last := testsupport.MustRequest(t, st, "u1", "3", nil, store.StatusApproved)

	all, err := st.ListRequests(ctx, store.RequestFilter{})
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if len(all) != 3 || all[0].ID != last.ID {
		t.Fatalf("expected newest first, got %d rows starting with %d", len(all), all[0].ID)
	}
	if all[0].UserName != "alice" {
		t.Fatalf("expected joined user name, got %q", all[0].UserName)
	}

	own, err := st.ListRequests(ctx, store.RequestFilter{UserID: "u1", Status: store.StatusApproved})
	if err != nil || len(own) != 1 || own[0].TMDBID != "3" {
		t.Fatalf("unexpected filtered rows: %#v %v", own, err)
	}

	paged, err := st.ListRequests(ctx, store.RequestFilter{Skip: 1, Limit: 1})
	if err != nil || len(paged) != 1 {
		t.Fatalf("unexpected page: %#v %v", paged, err)
	}

	approved, err := st.ListByStatus(ctx, store.StatusApproved)
	if err != nil || len(approved) != 2 {
		t.Fatalf("ListByStatus = %d rows, %v", len(approved), err)
	}
	counts, err := st.CountByStatus(ctx)
	if err != nil || counts[store.StatusApproved] != 2 || counts[store.StatusPending] != 1 {
		t.Fatalf("CountByStatus = %v, %v", counts, err)
	}
}

func TestSetStatusAndDeletePending(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustUser(t, st, "u1", "alice", store.RoleUser)

	if req, err := st.SetStatus(ctx, 999, store.StatusApproved); err != nil || req != nil {
		t.Fatalf("expected nil for missing request, got %#v %v", req, err)
	}
	if _, err := st.SetStatus(ctx, 1, store.Status("bogus")); err == nil {
		t.Fatal("expected invalid status error")
	}

	pending := testsupport.MustRequest(t, st, "u1", "10", nil, store.StatusPending)
	approved := testsupport.MustRequest(t, st, "u1", "11", nil, store.StatusApproved)

	if ok, err := st.DeletePending(ctx, approved.ID); err != nil || ok {
		t.Fatalf("expected approved request to survive delete, got %v %v", ok, err)
	}
	if ok, err := st.DeletePending(ctx, pending.ID); err != nil || !ok {
		t.Fatalf("expected pending request deleted, got %v %v", ok, err)
	}
	if gone, _ := st.GetRequest(ctx, pending.ID); gone != nil {
		t.Fatalf("expected request to be gone, got %#v", gone)
	}
}

func TestCompleteWithNotificationIsGuarded(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustUser(t, st, "u1", "alice", store.RoleUser)

	approved := testsupport.MustRequest(t, st, "u1", "550", nil, store.StatusApproved)
	rejected := testsupport.MustRequest(t, st, "u1", "551", nil, store.StatusRejected)

	ok, err := st.CompleteWithNotification(ctx, approved.ID, "资源已入库", "done")
	if err != nil || !ok {
		t.Fatalf("expected completion, got %v %v", ok, err)
	}
	ok, err = st.CompleteWithNotification(ctx, approved.ID, "资源已入库", "done")
	if err != nil || ok {
		t.Fatalf("expected second completion to be a no-op, got %v %v", ok, err)
	}
	ok, err = st.CompleteWithNotification(ctx, rejected.ID, "资源已入库", "done")
	if err != nil || ok {
		t.Fatalf("expected rejected request to be untouched, got %v %v", ok, err)
	}

	updated, _ := st.GetRequest(ctx, approved.ID)
	if updated.Status != store.StatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	notes, err := st.ListNotifications(ctx, "u1", 0, 0)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notes))
	}
	if notes[0].RelatedSubscriptionID == nil || *notes[0].RelatedSubscriptionID != approved.ID {
		t.Fatalf("expected back-reference to request, got %#v", notes[0].RelatedSubscriptionID)
	}
	if notes[0].IsRead {
		t.Fatal("expected unread notification")
	}

	unread, _ := st.CountUnread(ctx, "u1")
	if unread != 1 {
		t.Fatalf("expected one unread, got %d", unread)
	}
	if err := st.MarkNotificationRead(ctx, notes[0].ID); err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	read, err := st.GetNotification(ctx, notes[0].ID)
	if err != nil || read == nil || !read.IsRead {
		t.Fatalf("expected read notification, got %#v %v", read, err)
	}
	if missing, err := st.GetNotification(ctx, 12345); err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing notification, got %#v %v", missing, err)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := store.ParseStatus(" Approved "); !ok || status != store.StatusApproved {
		t.Fatalf("unexpected parse result %q %v", status, ok)
	}
	if _, ok := store.ParseStatus("done"); ok {
		t.Fatal("expected unknown status to fail")
	}
	if store.StatusPending.Upper() != "PENDING" {
		t.Fatalf("unexpected upper form %q", store.StatusPending.Upper())
	}
}
