package daemon

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"embysub/internal/api"
	"embysub/internal/auth"
	"embysub/internal/store"
	"embysub/internal/subscriptions"
)

func (d *Daemon) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	var body api.CreateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(d.logger, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(d.logger, w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	req, err := d.requests.Create(r.Context(), user, subscriptions.NewRequest{
		TMDBID:         body.TMDBID,
		MediaType:      body.MediaType,
		Title:          body.Title,
		PosterPath:     body.PosterPath,
		Overview:       body.Overview,
		ReleaseDate:    body.ReleaseDate,
		SpecificSeason: body.SpecificSeason,
		Comment:        body.Comment,
	})
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, api.FromRequest(req))
}

func (d *Daemon) handleListRequests(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	q := r.URL.Query()
	opts := subscriptions.ListOptions{
		Skip:  queryInt(r, "skip", 0),
		Limit: queryInt(r, "limit", 100),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, ok := store.ParseStatus(raw)
		if !ok {
			writeError(d.logger, w, http.StatusBadRequest, "invalid status "+strconv.Quote(raw))
			return
		}
		opts.Status = status
	}
	if own, err := strconv.ParseBool(q.Get("own")); err == nil {
		opts.Own = own
	}
	reqs, err := d.requests.List(r.Context(), user, opts)
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, api.FromRequests(reqs))
}

func (d *Daemon) handleApprove(w http.ResponseWriter, r *http.Request) {
	d.transition(w, r, d.requests.Approve)
}

func (d *Daemon) handleReject(w http.ResponseWriter, r *http.Request) {
	d.transition(w, r, d.requests.Reject)
}

func (d *Daemon) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, *store.User, int64) (*store.Request, error)) {
	admin, _ := auth.UserFromContext(r.Context())
	id, ok := pathInt64(r, "requestID")
	if !ok {
		writeError(d.logger, w, http.StatusBadRequest, "invalid request id")
		return
	}
	req, err := apply(r.Context(), admin, id)
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, api.FromRequest(req))
}

// handleCancelRequest deletes the caller's pending request for a title, optionally
// narrowed to one season with ?season_number=.
func (d *Daemon) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	tmdbID := strings.TrimSpace(chi.URLParam(r, "tmdbID"))
	if tmdbID == "" {
		writeError(d.logger, w, http.StatusBadRequest, "invalid tmdb id")
		return
	}
	var season *int
	if raw := strings.TrimSpace(r.URL.Query().Get("season_number")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(d.logger, w, http.StatusBadRequest, "invalid season number")
			return
		}
		season = &n
	}
	deleted, err := d.requests.Cancel(r.Context(), user, tmdbID, season)
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, api.FromRequest(deleted))
}

func (d *Daemon) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	items, err := d.requests.Notifications(r.Context(), user, queryInt(r, "skip", 0), queryInt(r, "limit", 50))
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, api.FromNotifications(items))
}

func (d *Daemon) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id, ok := pathInt64(r, "notificationID")
	if !ok {
		writeError(d.logger, w, http.StatusBadRequest, "invalid notification id")
		return
	}
	n, err := d.requests.MarkRead(r.Context(), user, id)
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, api.FromNotification(n))
}
