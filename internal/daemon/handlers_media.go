package daemon

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"embysub/internal/media"
)

func queryInt(r *http.Request, key string, fallback int) int {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func pathInt64(r *http.Request, key string) (int64, bool) {
	parsed, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	return parsed, err == nil
}

func (d *Daemon) handleTrending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := d.media.Trending(r.Context(), media.TrendingQuery{
		Page:          queryInt(r, "page", 1),
		MediaType:     q.Get("media_type"),
		TimeWindow:    q.Get("time_window"),
		WithoutGenres: q.Get("without_genres"),
	})
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, list)
}

func (d *Daemon) handleLatest(w http.ResponseWriter, r *http.Request) {
	list, err := d.media.Latest(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, list)
}

func (d *Daemon) handleSearch(w http.ResponseWriter, r *http.Request) {
	list, err := d.media.Search(r.Context(), r.URL.Query().Get("query"), queryInt(r, "page", 1))
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, list)
}

func (d *Daemon) handleAnime(w http.ResponseWriter, r *http.Request) {
	list, err := d.media.Anime(r.Context(), queryInt(r, "page", 1))
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, list)
}

func (d *Daemon) handlePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "personID")
	if !ok {
		writeError(d.logger, w, http.StatusBadRequest, "invalid person id")
		return
	}
	person, err := d.media.Person(r.Context(), id)
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, person)
}

func (d *Daemon) handleSeason(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "tmdbID")
	if !ok {
		writeError(d.logger, w, http.StatusBadRequest, "invalid tmdb id")
		return
	}
	season, err := strconv.Atoi(chi.URLParam(r, "season"))
	if err != nil || season < 0 {
		writeError(d.logger, w, http.StatusBadRequest, "invalid season number")
		return
	}
	details, err := d.media.Season(r.Context(), id, season)
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, details)
}

func (d *Daemon) handleDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "tmdbID")
	if !ok {
		writeError(d.logger, w, http.StatusBadRequest, "invalid tmdb id")
		return
	}
	details, err := d.media.Details(r.Context(), chi.URLParam(r, "mediaType"), id)
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeJSON(d.logger, w, http.StatusOK, details)
}

func (d *Daemon) handleEmbyImage(w http.ResponseWriter, r *http.Request) {
	body, contentType, err := d.media.EmbyImage(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeServiceError(d.logger, w, r, err)
		return
	}
	writeImage(w, body, contentType)
}

func (d *Daemon) handleCatalogImage(w http.ResponseWriter, r *http.Request) {
	body, contentType, err := d.media.CatalogImage(r.Context(), chi.URLParam(r, "size"), chi.URLParam(r, "*"))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeImage(w, body, contentType)
}

func writeImage(w http.ResponseWriter, body []byte, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
