package daemon

import (
	"mime"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"embysub/internal/api"
	"embysub/internal/auth"
	"embysub/internal/logging"
	"embysub/internal/services"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// handleLogin accepts an OAuth2 password form or a JSON body.
func (d *Daemon) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body api.LoginRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(d.logger, w, http.StatusBadRequest, "Authentication failed: invalid request body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(d.logger, w, http.StatusBadRequest, "Authentication failed: invalid form body")
			return
		}
		body.Username = r.PostForm.Get("username")
		body.Password = r.PostForm.Get("password")
	}
	body.Username = strings.TrimSpace(body.Username)
	if err := validate.Struct(body); err != nil {
		writeError(d.logger, w, http.StatusBadRequest, "Authentication failed: username is required")
		return
	}

	session, err := d.auth.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		logging.WithContext(r.Context(), d.logger).Info("login failed",
			logging.String("username", body.Username),
			logging.Error(err),
		)
		writeError(d.logger, w, http.StatusBadRequest, "Authentication failed: "+services.Detail(err))
		return
	}
	writeJSON(d.logger, w, http.StatusOK, api.Token{
		AccessToken: session.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   session.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		User:        api.FromUser(session.User),
	})
}

func (d *Daemon) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	writeJSON(d.logger, w, http.StatusOK, api.FromUser(user))
}
