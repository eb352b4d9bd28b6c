package api

import (
	"slices"
	"time"

	"embysub/internal/reconcile"
	"embysub/internal/store"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromUser converts a store user to its API representation.
func FromUser(user *store.User) User {
	if user == nil {
		return User{}
	}
	dto := User{
		ID:        user.ID,
		Name:      user.Name,
		Role:      string(user.Role),
		CreatedAt: formatTime(user.CreatedAt),
	}
	if user.LastLogin != nil {
		dto.LastLogin = formatTime(*user.LastLogin)
	}
	return dto
}

// FromRequest converts a stored subscription request.
func FromRequest(req *store.Request) Request {
	if req == nil {
		return Request{}
	}
	return Request{
		ID:             req.ID,
		UserID:         req.UserID,
		UserName:       req.UserName,
		TMDBID:         req.TMDBID,
		MediaType:      req.MediaType,
		Title:          req.Title,
		PosterPath:     req.PosterPath,
		Overview:       req.Overview,
		ReleaseDate:    req.ReleaseDate,
		SpecificSeason: req.SpecificSeason,
		Status:         string(req.Status),
		RequestDate:    formatTime(req.RequestDate),
		UpdatedAt:      formatTime(req.UpdatedAt),
		Comment:        req.Comment,
		IMDBID:         req.IMDBID,
		TVDBID:         req.TVDBID,
	}
}

// FromRequests converts a slice, always returning a non-nil result.
func FromRequests(reqs []*store.Request) []Request {
	out := make([]Request, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, FromRequest(req))
	}
	return out
}

// FromNotification converts an inbox entry.
func FromNotification(n *store.Notification) Notification {
	if n == nil {
		return Notification{}
	}
	return Notification{
		ID:                    n.ID,
		UserID:                n.UserID,
		Title:                 n.Title,
		Message:               n.Message,
		IsRead:                n.IsRead,
		CreatedAt:             formatTime(n.CreatedAt),
		RelatedSubscriptionID: n.RelatedSubscriptionID,
	}
}

// FromNotifications converts a slice, always returning a non-nil result.
func FromNotifications(items []*store.Notification) []Notification {
	out := make([]Notification, 0, len(items))
	for _, n := range items {
		out = append(out, FromNotification(n))
	}
	return out
}

// FromSummary converts a reconciliation pass summary.
func FromSummary(summary reconcile.Summary) *ReconcileRun {
	return &ReconcileRun{
		RunID:      summary.RunID,
		StartedAt:  formatTime(summary.StartedAt),
		FinishedAt: formatTime(summary.FinishedAt),
		DurationMS: summary.Duration().Milliseconds(),
		Checked:    summary.Checked,
		Completed:  summary.Completed,
		Failed:     summary.Failed,
		Error:      summary.Error,
	}
}

// RequestCounts flattens per-status counts, listing every status even when zero.
func RequestCounts(counts map[store.Status]int) map[string]int {
	out := map[string]int{
		string(store.StatusPending):   0,
		string(store.StatusApproved):  0,
		string(store.StatusRejected):  0,
		string(store.StatusCompleted): 0,
	}
	for status, count := range counts {
		out[string(status)] = count
	}
	return out
}

// SortedStatuses returns the keys of a count map in a stable order for rendering.
func SortedStatuses(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
