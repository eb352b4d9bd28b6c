package daemon

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"embysub/internal/api"
	"embysub/internal/logging"
	"embysub/internal/services"
)

// writeJSON encodes payload before touching the response so an encoding failure
// still yields a 500 instead of a truncated body.
func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		if logger != nil {
			logger.Error("failed to encode response", logging.Error(err))
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"Internal server error"}` + "\n"))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(logger *slog.Logger, w http.ResponseWriter, status int, detail string) {
	writeJSON(logger, w, status, api.ErrorResponse{Detail: detail})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	return services.HTTPStatus(err)
}

// writeServiceError answers with the status derived from err. Internal failures are
// logged and reported without their cause.
func writeServiceError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), logger), "request failed", "api_request_failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
		if status == http.StatusBadGateway && errors.Is(err, services.ErrExternal) {
			writeError(logger, w, status, services.Detail(err))
			return
		}
		writeError(logger, w, status, "Internal server error")
		return
	}
	writeError(logger, w, status, services.Detail(err))
}
