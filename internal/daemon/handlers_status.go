package daemon

import (
	"errors"
	"net/http"

	"embysub/internal/api"
	"embysub/internal/reconcile"
)

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := d.Status(r.Context())
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, status)
}

// handleReconcile runs one pass synchronously and returns its summary.
func (d *Daemon) handleReconcile(w http.ResponseWriter, r *http.Request) {
	summary, err := d.job.RunOnce(r.Context())
	if errors.Is(err, reconcile.ErrAlreadyRunning) {
		writeError(d.logger, w, http.StatusConflict, "Reconcile pass already running")
		return
	}
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, api.FromSummary(summary))
}
