package store

import (
	"strings"
	"time"
)

// Role mirrors the Emby administrator flag.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is a local mirror of an Emby account. The id is the Emby user id.
type User struct {
	ID        string
	Name      string
	Role      Role
	CreatedAt time.Time
	LastLogin *time.Time
}

// IsAdmin reports whether the user may approve and reject requests.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Status represents the lifecycle of a subscription request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

var statusSet = map[Status]struct{}{
	StatusPending:   {},
	StatusApproved:  {},
	StatusRejected:  {},
	StatusCompleted: {},
}

// ParseStatus normalizes a user supplied status string.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// Upper returns the status as surfaced to API consumers (PENDING, APPROVED, ...).
func (s Status) Upper() string {
	return strings.ToUpper(string(s))
}

// Request is a persisted subscription request.
type Request struct {
	ID             int64
	UserID         string
	TMDBID         string
	MediaType      string
	Title          string
	PosterPath     string
	Overview       string
	ReleaseDate    string
	SpecificSeason *int
	Status         Status
	RequestDate    time.Time
	UpdatedAt      time.Time
	Comment        string
	IMDBID         string
	TVDBID         string

	// UserName is populated by listing queries that join users.
	UserName string
}

// Key identifies the request slot a row occupies: catalog id plus season, where a nil
// season is the whole-series slot.
type Key struct {
	TMDBID string
	Season *int
}

// Notification is an inbox entry for a user.
type Notification struct {
	ID                    int64
	UserID                string
	Title                 string
	Message               string
	IsRead                bool
	CreatedAt             time.Time
	RelatedSubscriptionID *int64
}

// RequestFilter narrows ListRequests.
type RequestFilter struct {
	UserID string
	Status Status
	Skip   int
	Limit  int
}
