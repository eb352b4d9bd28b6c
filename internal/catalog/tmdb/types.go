package tmdb

import "strconv"

// Media is a movie, series or credit entry as returned in TMDB list payloads.
type Media struct {
	ID               int64   `json:"id"`
	MediaType        string  `json:"media_type,omitempty"`
	Title            string  `json:"title,omitempty"`
	OriginalTitle    string  `json:"original_title,omitempty"`
	Name             string  `json:"name,omitempty"`
	OriginalName     string  `json:"original_name,omitempty"`
	Overview         string  `json:"overview,omitempty"`
	PosterPath       string  `json:"poster_path,omitempty"`
	BackdropPath     string  `json:"backdrop_path,omitempty"`
	ReleaseDate      string  `json:"release_date,omitempty"`
	FirstAirDate     string  `json:"first_air_date,omitempty"`
	OriginalLanguage string  `json:"original_language,omitempty"`
	GenreIDs         []int64 `json:"genre_ids,omitempty"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int64   `json:"vote_count"`
	Adult            bool    `json:"adult"`

	// Credit fields, present on person credits.
	Character  string `json:"character,omitempty"`
	Job        string `json:"job,omitempty"`
	Department string `json:"department,omitempty"`
	CreditID   string `json:"credit_id,omitempty"`
}

// IDString returns the catalog id in the string form used by the request store.
func (m Media) IDString() string {
	return strconv.FormatInt(m.ID, 10)
}

// DisplayTitle returns the movie title or the series name.
func (m Media) DisplayTitle() string {
	if m.Title != "" {
		return m.Title
	}
	return m.Name
}

// Year returns the first four characters of the movie or series release date.
func (m Media) Year() string {
	if y := yearPrefix(m.ReleaseDate); y != "" {
		return y
	}
	return yearPrefix(m.FirstAirDate)
}

func yearPrefix(date string) string {
	if len(date) < 4 {
		return ""
	}
	return date[:4]
}

// Page models a paginated TMDB list response.
type Page struct {
	Page         int     `json:"page"`
	Results      []Media `json:"results"`
	TotalPages   int     `json:"total_pages"`
	TotalResults int     `json:"total_results"`
}

// Genre is a TMDB genre reference.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ExternalIDs carries cross-reference identifiers.
type ExternalIDs struct {
	IMDBID string `json:"imdb_id,omitempty"`
	TVDBID *int64 `json:"tvdb_id,omitempty"`
}

// TVDBString returns the tvdb id as a string, or "" when absent.
func (e *ExternalIDs) TVDBString() string {
	if e == nil || e.TVDBID == nil || *e.TVDBID == 0 {
		return ""
	}
	return strconv.FormatInt(*e.TVDBID, 10)
}

// CastMember is an entry of a title's cast list.
type CastMember struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Character   string `json:"character,omitempty"`
	ProfilePath string `json:"profile_path,omitempty"`
	Order       int    `json:"order"`
}

// CrewMember is an entry of a title's crew list.
type CrewMember struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Job         string `json:"job,omitempty"`
	Department  string `json:"department,omitempty"`
	ProfilePath string `json:"profile_path,omitempty"`
}

// Credits groups cast and crew.
type Credits struct {
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// SeasonSummary is a season entry embedded in series details.
type SeasonSummary struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Overview     string `json:"overview,omitempty"`
	PosterPath   string `json:"poster_path,omitempty"`
	SeasonNumber int    `json:"season_number"`
	EpisodeCount int    `json:"episode_count"`
	AirDate      string `json:"air_date,omitempty"`
}

// Details is the movie or series details payload with external ids and credits appended.
type Details struct {
	Media
	Genres           []Genre         `json:"genres,omitempty"`
	Tagline          string          `json:"tagline,omitempty"`
	Homepage         string          `json:"homepage,omitempty"`
	ReleaseStatus    string          `json:"status,omitempty"`
	Runtime          int             `json:"runtime,omitempty"`
	EpisodeRunTime   []int           `json:"episode_run_time,omitempty"`
	NumberOfSeasons  int             `json:"number_of_seasons,omitempty"`
	NumberOfEpisodes int             `json:"number_of_episodes,omitempty"`
	Seasons          []SeasonSummary `json:"seasons,omitempty"`
	ExternalIDs      *ExternalIDs    `json:"external_ids,omitempty"`
	Credits          *Credits        `json:"credits,omitempty"`
}

// Episode is a single episode within a season.
type Episode struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Overview      string  `json:"overview,omitempty"`
	StillPath     string  `json:"still_path,omitempty"`
	SeasonNumber  int     `json:"season_number"`
	EpisodeNumber int     `json:"episode_number"`
	AirDate       string  `json:"air_date,omitempty"`
	Runtime       int     `json:"runtime,omitempty"`
	VoteAverage   float64 `json:"vote_average"`
}

// Season is the full season payload.
type Season struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Overview     string    `json:"overview,omitempty"`
	PosterPath   string    `json:"poster_path,omitempty"`
	SeasonNumber int       `json:"season_number"`
	AirDate      string    `json:"air_date,omitempty"`
	Episodes     []Episode `json:"episodes"`
}

// CombinedCredits lists a person's movie and tv credits.
type CombinedCredits struct {
	Cast []Media `json:"cast"`
	Crew []Media `json:"crew"`
}

// Person is the person payload with combined credits appended.
type Person struct {
	ID                 int64            `json:"id"`
	Name               string           `json:"name"`
	Biography          string           `json:"biography,omitempty"`
	Birthday           string           `json:"birthday,omitempty"`
	Deathday           string           `json:"deathday,omitempty"`
	PlaceOfBirth       string           `json:"place_of_birth,omitempty"`
	ProfilePath        string           `json:"profile_path,omitempty"`
	KnownForDepartment string           `json:"known_for_department,omitempty"`
	AlsoKnownAs        []string         `json:"also_known_as,omitempty"`
	Popularity         float64          `json:"popularity"`
	ExternalIDs        *ExternalIDs     `json:"external_ids,omitempty"`
	CombinedCredits    *CombinedCredits `json:"combined_credits,omitempty"`
}

// FindResult is the cross-reference lookup payload.
type FindResult struct {
	MovieResults []Media `json:"movie_results"`
	TVResults    []Media `json:"tv_results"`
}

// First returns the first movie candidate, else the first series candidate.
func (f *FindResult) First() (Media, bool) {
	if f == nil {
		return Media{}, false
	}
	if len(f.MovieResults) > 0 {
		return f.MovieResults[0], true
	}
	if len(f.TVResults) > 0 {
		return f.TVResults[0], true
	}
	return Media{}, false
}
