package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"embysub/internal/logging"
	"embysub/internal/services/emby"
	"embysub/internal/store"
	"embysub/internal/testsupport"
)

type fakeInventory struct {
	mu      sync.Mutex
	present map[string]bool
	failing map[string]bool
	calls   int
	hook    func(id string)
	block   chan struct{}
}

func (f *fakeInventory) FindByProviderID(ctx context.Context, _ string, id string) ([]emby.Item, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.calls++
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	if f.failing[id] {
		return nil, errors.New("emby unavailable")
	}
	if f.present[id] {
		return []emby.Item{{ID: "emby-" + id}}, nil
	}
	return []emby.Item{}, nil
}

func (f *fakeInventory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.MustUser(t, st, "u1", "alice", store.RoleUser)
	return st
}

func notificationsFor(t *testing.T, st *store.Store, userID string) []*store.Notification {
	t.Helper()
	list, err := st.ListNotifications(context.Background(), userID, 0, 50)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	return list
}

func TestRunOnceCompletesAvailableRequest(t *testing.T) {
	st := newStore(t)
	req := testsupport.MustRequest(t, st, "u1", "550", nil, store.StatusApproved)
	inv := &fakeInventory{present: map[string]bool{"550": true}}
	job := New(inv, st, logging.NewNop())

	summary, err := job.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if summary.Checked != 1 || summary.Completed != 1 {
		t.Fatalf("unexpected summary %#v", summary)
	}

	got, err := st.GetRequest(context.Background(), req.ID)
	if err != nil || got.Status != store.StatusCompleted {
		t.Fatalf("expected completed request, got %#v %v", got, err)
	}
	notes := notificationsFor(t, st, "u1")
	if len(notes) != 1 {
		t.Fatalf("expected one notification, got %d", len(notes))
	}
	note := notes[0]
	if note.Title != NotificationTitle || note.Message != NotificationMessage(req.Title) {
		t.Fatalf("unexpected notification %#v", note)
	}
	if note.RelatedSubscriptionID == nil || *note.RelatedSubscriptionID != req.ID {
		t.Fatalf("expected related subscription %d, got %v", req.ID, note.RelatedSubscriptionID)
	}

	// A second pass finds nothing approved and writes nothing.
	if _, err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce returned error: %v", err)
	}
	if len(notificationsFor(t, st, "u1")) != 1 {
		t.Fatal("expected notification count to stay at one")
	}
}

func TestRunOnceLeavesMissingRequestApproved(t *testing.T) {
	st := newStore(t)
	req := testsupport.MustRequest(t, st, "u1", "551", nil, store.StatusApproved)
	job := New(&fakeInventory{}, st, logging.NewNop())

	summary, err := job.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if summary.Completed != 0 {
		t.Fatalf("expected no completions, got %#v", summary)
	}
	got, _ := st.GetRequest(context.Background(), req.ID)
	if got.Status != store.StatusApproved {
		t.Fatalf("expected approved, got %s", got.Status)
	}
	if len(notificationsFor(t, st, "u1")) != 0 {
		t.Fatal("expected no notifications")
	}
}

func TestRunOnceNoApprovedIsNoop(t *testing.T) {
	st := newStore(t)
	testsupport.MustRequest(t, st, "u1", "1", nil, store.StatusPending)
	testsupport.MustRequest(t, st, "u1", "2", nil, store.StatusRejected)
	inv := &fakeInventory{present: map[string]bool{"1": true, "2": true}}
	job := New(inv, st, logging.NewNop())

	summary, err := job.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if inv.callCount() != 0 || summary.Checked != 0 {
		t.Fatalf("expected no emby calls, got %d (%#v)", inv.callCount(), summary)
	}
	if _, ok := job.LastRun(); !ok {
		t.Fatal("expected last run to be recorded")
	}
}

func TestRunOnceContinuesAfterItemFailure(t *testing.T) {
	st := newStore(t)
	failing := testsupport.MustRequest(t, st, "u1", "10", nil, store.StatusApproved)
	ok := testsupport.MustRequest(t, st, "u1", "11", nil, store.StatusApproved)
	inv := &fakeInventory{
		present: map[string]bool{"10": true, "11": true},
		failing: map[string]bool{"10": true},
	}
	job := New(inv, st, logging.NewNop())

	summary, err := job.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if summary.Failed != 1 || summary.Completed != 1 {
		t.Fatalf("unexpected summary %#v", summary)
	}
	first, _ := st.GetRequest(context.Background(), failing.ID)
	second, _ := st.GetRequest(context.Background(), ok.ID)
	if first.Status != store.StatusApproved || second.Status != store.StatusCompleted {
		t.Fatalf("unexpected statuses %s %s", first.Status, second.Status)
	}
}

func TestRunOnceRespectsConcurrentRejection(t *testing.T) {
	st := newStore(t)
	req := testsupport.MustRequest(t, st, "u1", "77", nil, store.StatusApproved)
	inv := &fakeInventory{present: map[string]bool{"77": true}}
	inv.hook = func(string) {
		if _, err := st.SetStatus(context.Background(), req.ID, store.StatusRejected); err != nil {
			t.Errorf("SetStatus: %v", err)
		}
	}
	job := New(inv, st, logging.NewNop())

	summary, err := job.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if summary.Completed != 0 {
		t.Fatalf("expected guarded write to skip, got %#v", summary)
	}
	got, _ := st.GetRequest(context.Background(), req.ID)
	if got.Status != store.StatusRejected {
		t.Fatalf("expected rejected to stand, got %s", got.Status)
	}
	if len(notificationsFor(t, st, "u1")) != 0 {
		t.Fatal("expected no notification for a rejected request")
	}
}

func TestRunOnceRejectsOverlap(t *testing.T) {
	st := newStore(t)
	testsupport.MustRequest(t, st, "u1", "5", nil, store.StatusApproved)
	inv := &fakeInventory{block: make(chan struct{})}
	job := New(inv, st, logging.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := job.RunOnce(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !job.Running() {
		if time.Now().After(deadline) {
			t.Fatal("first pass never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := job.RunOnce(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	job.trigger(context.Background())
	if job.SkippedTicks() != 2 {
		t.Fatalf("expected two skipped attempts, got %d", job.SkippedTicks())
	}

	close(inv.block)
	if err := <-done; err != nil {
		t.Fatalf("first pass returned error: %v", err)
	}
	if job.Running() {
		t.Fatal("expected job to be idle")
	}
}

func TestServeRunsOnStartAndStops(t *testing.T) {
	st := newStore(t)
	req := testsupport.MustRequest(t, st, "u1", "9", nil, store.StatusApproved)
	inv := &fakeInventory{present: map[string]bool{"9": true}}
	job := New(inv, st, logging.NewNop(), WithInterval(time.Hour), WithRunOnStart(true))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- job.Serve(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := job.LastRun(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected initial pass to finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	got, _ := st.GetRequest(context.Background(), req.ID)
	if got.Status != store.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}
