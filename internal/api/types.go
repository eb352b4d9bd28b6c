package api

import (
	"github.com/goccy/go-json"

	"embysub/internal/catalog/tmdb"
	"embysub/internal/services/emby"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// MediaItem is a catalog entry annotated with its library/request status.
type MediaItem struct {
	tmdb.Media
	Status        string `json:"status,omitempty"`
	EmbyID        string `json:"emby_id,omitempty"`
	RequestUserID string `json:"request_user_id,omitempty"`
}

// MediaList wraps list endpoints. TotalPages is only set by search.
type MediaList struct {
	Results    []MediaItem `json:"results"`
	TotalPages *int        `json:"total_pages,omitempty"`
}

// SeasonItem is a season summary annotated with library and request state.
type SeasonItem struct {
	tmdb.SeasonSummary
	ExistingEpisodeCount *int   `json:"existing_episode_count,omitempty"`
	SubscriptionStatus   string `json:"subscription_status,omitempty"`
}

// MediaDetails is the details payload for a movie or series. Status and Seasons
// replace the catalog's release status and season list on the wire.
type MediaDetails struct {
	tmdb.Details
	Status        string          `json:"status,omitempty"`
	EmbyID        string          `json:"emby_id,omitempty"`
	RequestUserID string          `json:"request_user_id,omitempty"`
	Seasons       []SeasonItem    `json:"seasons,omitempty"`
	MediaInfo     *emby.MediaInfo `json:"media_info,omitempty"`
}

// mediaDetailsJSON is the flattened wire form of MediaDetails. It embeds only
// tmdb.Media so no json tag appears at two depths.
type mediaDetailsJSON struct {
	tmdb.Media
	Genres           []tmdb.Genre      `json:"genres,omitempty"`
	Tagline          string            `json:"tagline,omitempty"`
	Homepage         string            `json:"homepage,omitempty"`
	Runtime          int               `json:"runtime,omitempty"`
	EpisodeRunTime   []int             `json:"episode_run_time,omitempty"`
	NumberOfSeasons  int               `json:"number_of_seasons,omitempty"`
	NumberOfEpisodes int               `json:"number_of_episodes,omitempty"`
	ExternalIDs      *tmdb.ExternalIDs `json:"external_ids,omitempty"`
	Credits          *tmdb.Credits     `json:"credits,omitempty"`
	Status           string            `json:"status,omitempty"`
	EmbyID           string            `json:"emby_id,omitempty"`
	RequestUserID    string            `json:"request_user_id,omitempty"`
	Seasons          []SeasonItem      `json:"seasons,omitempty"`
	MediaInfo        *emby.MediaInfo   `json:"media_info,omitempty"`
}

// MarshalJSON writes the annotated fields in place of the catalog's status and seasons.
func (d MediaDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(mediaDetailsJSON{
		Media:            d.Media,
		Genres:           d.Genres,
		Tagline:          d.Tagline,
		Homepage:         d.Homepage,
		Runtime:          d.Runtime,
		EpisodeRunTime:   d.EpisodeRunTime,
		NumberOfSeasons:  d.NumberOfSeasons,
		NumberOfEpisodes: d.NumberOfEpisodes,
		ExternalIDs:      d.ExternalIDs,
		Credits:          d.Credits,
		Status:           d.Status,
		EmbyID:           d.EmbyID,
		RequestUserID:    d.RequestUserID,
		Seasons:          d.Seasons,
		MediaInfo:        d.MediaInfo,
	})
}

// EpisodeItem is an episode annotated with whether Emby holds it.
type EpisodeItem struct {
	tmdb.Episode
	IsInLibrary *bool `json:"is_in_library,omitempty"`
}

// SeasonDetails is the full season payload.
type SeasonDetails struct {
	tmdb.Season
	Episodes []EpisodeItem `json:"episodes"`
}

// PersonCredits lists a person's credits with status annotations.
type PersonCredits struct {
	Cast []MediaItem `json:"cast"`
	Crew []MediaItem `json:"crew"`
}

// PersonDetails is the person payload with annotated combined credits.
type PersonDetails struct {
	tmdb.Person
	CombinedCredits *PersonCredits `json:"combined_credits,omitempty"`
}

// User is the transport form of a local user.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at,omitempty"`
	LastLogin string `json:"last_login,omitempty"`
}

// Token is the login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	User        User   `json:"user"`
}

// LoginRequest is the JSON login body. Form posts carry the same field names.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=256"`
	Password string `json:"password" validate:"max=1024"`
}

// CreateRequest is the body of a new subscription request.
type CreateRequest struct {
	TMDBID         string `json:"tmdb_id" validate:"required,max=32"`
	MediaType      string `json:"media_type" validate:"required,oneof=movie tv series"`
	Title          string `json:"title" validate:"max=512"`
	PosterPath     string `json:"poster_path" validate:"max=512"`
	Overview       string `json:"overview"`
	ReleaseDate    string `json:"release_date" validate:"max=32"`
	SpecificSeason *int   `json:"specific_season" validate:"omitempty,min=0"`
	Comment        string `json:"comment" validate:"max=2000"`
}

// Request is the transport form of a subscription request.
type Request struct {
	ID             int64  `json:"id"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name,omitempty"`
	TMDBID         string `json:"tmdb_id"`
	MediaType      string `json:"media_type"`
	Title          string `json:"title"`
	PosterPath     string `json:"poster_path,omitempty"`
	Overview       string `json:"overview,omitempty"`
	ReleaseDate    string `json:"release_date,omitempty"`
	SpecificSeason *int   `json:"specific_season"`
	Status         string `json:"status"`
	RequestDate    string `json:"request_date"`
	UpdatedAt      string `json:"updated_at,omitempty"`
	Comment        string `json:"comment,omitempty"`
	IMDBID         string `json:"imdb_id,omitempty"`
	TVDBID         string `json:"tvdb_id,omitempty"`
}

// Notification is an inbox entry.
type Notification struct {
	ID                    int64  `json:"id"`
	UserID                string `json:"user_id"`
	Title                 string `json:"title"`
	Message               string `json:"message"`
	IsRead                bool   `json:"is_read"`
	CreatedAt             string `json:"created_at"`
	RelatedSubscriptionID *int64 `json:"related_subscription_id"`
}

// ReconcileRun summarizes one availability pass.
type ReconcileRun struct {
	RunID      string `json:"run_id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Checked    int    `json:"checked"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// ReconcileStatus reports the job state.
type ReconcileStatus struct {
	Running         bool          `json:"running"`
	IntervalSeconds int           `json:"interval_seconds"`
	SkippedTicks    int           `json:"skipped_ticks"`
	LastRun         *ReconcileRun `json:"last_run,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool            `json:"running"`
	PID           int             `json:"pid"`
	DatabasePath  string          `json:"database_path"`
	LockFilePath  string          `json:"lock_file_path"`
	RequestCounts map[string]int  `json:"request_counts"`
	Reconcile     ReconcileStatus `json:"reconcile"`
	EmbyBreaker   string          `json:"emby_breaker,omitempty"`
}

// Message is the body of simple informational responses.
type Message struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
