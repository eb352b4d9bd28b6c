package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"embysub/internal/catalog/tmdb"
	"embysub/internal/logging"
	"embysub/internal/notifications"
	"embysub/internal/services"
	"embysub/internal/store"
)

const (
	defaultListLimit         = 100
	defaultNotificationLimit = 50
)

var (
	errAlreadyRequested = services.Wrap(services.ErrValidation, "", "", "Request for this media already exists", nil)
	errRequestNotFound  = services.Wrap(services.ErrNotFound, "", "", "Request not found", nil)
	errNotCancellable   = services.Wrap(services.ErrValidation, "", "", "Only pending requests can be cancelled", nil)
	errAdminRequired    = services.Wrap(services.ErrForbidden, "", "", "The user doesn't have enough privileges", nil)
)

// Store is the persistence surface the request lifecycle needs.
type Store interface {
	InsertRequest(ctx context.Context, req *store.Request) (*store.Request, error)
	ReviveRequest(ctx context.Context, id int64, req *store.Request) (bool, error)
	GetRequest(ctx context.Context, id int64) (*store.Request, error)
	FindByKey(ctx context.Context, key store.Key) (*store.Request, error)
	ListRequests(ctx context.Context, filter store.RequestFilter) ([]*store.Request, error)
	SetStatus(ctx context.Context, id int64, status store.Status) (*store.Request, error)
	DeletePending(ctx context.Context, id int64) (bool, error)

	ListNotifications(ctx context.Context, userID string, skip, limit int) ([]*store.Notification, error)
	GetNotification(ctx context.Context, id int64) (*store.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
}

// Catalog supplies the external ids recorded on new requests.
type Catalog interface {
	Details(ctx context.Context, kind string, id int64) (*tmdb.Details, error)
}

// NewRequest is the caller supplied part of a subscription request.
type NewRequest struct {
	TMDBID         string
	MediaType      string
	Title          string
	PosterPath     string
	Overview       string
	ReleaseDate    string
	SpecificSeason *int
	Comment        string
}

// ListOptions narrows List.
type ListOptions struct {
	Skip   int
	Limit  int
	Status store.Status
	Own    bool
}

// Service applies the request lifecycle rules on top of the store.
type Service struct {
	store    Store
	catalog  Catalog
	notifier notifications.Service
	logger   *slog.Logger
}

// NewService constructs the subscription service. A nil notifier disables operator pushes.
func NewService(st Store, catalog Catalog, notifier notifications.Service, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	return &Service{
		store:    st,
		catalog:  catalog,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "subscriptions"),
	}
}

// Create records a request for the caller. A rejected request the caller owns in the
// same slot is reopened instead; any other occupant of the slot is a validation error.
func (s *Service) Create(ctx context.Context, user *store.User, in NewRequest) (*store.Request, error) {
	if user == nil {
		return nil, services.Wrap(services.ErrUnauthorized, "subscriptions", "create", "no user", nil)
	}
	in.TMDBID = strings.TrimSpace(in.TMDBID)
	if in.TMDBID == "" {
		return nil, services.Wrap(services.ErrValidation, "subscriptions", "create", "tmdb_id is required", nil)
	}
	logger := logging.WithContext(ctx, s.logger).With(logging.String(logging.FieldCatalogID, in.TMDBID))

	req := &store.Request{
		UserID:         user.ID,
		TMDBID:         in.TMDBID,
		MediaType:      in.MediaType,
		Title:          in.Title,
		PosterPath:     in.PosterPath,
		Overview:       in.Overview,
		ReleaseDate:    in.ReleaseDate,
		SpecificSeason: in.SpecificSeason,
		Comment:        in.Comment,
		Status:         store.StatusPending,
	}

	existing, err := s.store.FindByKey(ctx, store.Key{TMDBID: in.TMDBID, Season: in.SpecificSeason})
	if err != nil {
		return nil, fmt.Errorf("find existing request: %w", err)
	}
	if existing != nil {
		return s.reopen(ctx, logger, existing, req)
	}

	s.attachExternalIDs(ctx, logger, req)

	created, err := s.store.InsertRequest(ctx, req)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, errAlreadyRequested
	}
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}
	logger.Info("subscription request created",
		logging.Int64(logging.FieldRequestID, created.ID),
		logging.String("title", created.Title),
		logging.String(logging.FieldUserID, user.ID),
	)
	s.publish(ctx, logger, notifications.EventRequestCreated, created, user.Name)
	return created, nil
}

func (s *Service) reopen(ctx context.Context, logger *slog.Logger, existing, req *store.Request) (*store.Request, error) {
	if existing.Status != store.StatusRejected || existing.UserID != req.UserID {
		return nil, errAlreadyRequested
	}
	revived, err := s.store.ReviveRequest(ctx, existing.ID, req)
	if err != nil {
		return nil, fmt.Errorf("revive request: %w", err)
	}
	if !revived {
		return nil, errAlreadyRequested
	}
	updated, err := s.store.GetRequest(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("reload request: %w", err)
	}
	if updated == nil {
		return nil, errRequestNotFound
	}
	logger.Info("rejected request reopened", logging.Int64(logging.FieldRequestID, updated.ID))
	return updated, nil
}

func (s *Service) attachExternalIDs(ctx context.Context, logger *slog.Logger, req *store.Request) {
	if s.catalog == nil {
		return
	}
	id, err := strconv.ParseInt(req.TMDBID, 10, 64)
	if err != nil {
		return
	}
	kind := req.MediaType
	if kind == "series" {
		kind = "tv"
	}
	details, err := s.catalog.Details(ctx, kind, id)
	if err != nil {
		logger.Debug("external id lookup failed", logging.Error(err))
		return
	}
	if details == nil || details.ExternalIDs == nil {
		return
	}
	req.IMDBID = details.ExternalIDs.IMDBID
	req.TVDBID = details.ExternalIDs.TVDBString()
}

// List returns requests newest first. Non-admins, and admins asking for their own
// rows, only see requests they made.
func (s *Service) List(ctx context.Context, user *store.User, opts ListOptions) ([]*store.Request, error) {
	if user == nil {
		return nil, services.Wrap(services.ErrUnauthorized, "subscriptions", "list", "no user", nil)
	}
	filter := store.RequestFilter{
		Status: opts.Status,
		Skip:   max(opts.Skip, 0),
		Limit:  opts.Limit,
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if !user.IsAdmin() || opts.Own {
		filter.UserID = user.ID
	}
	return s.store.ListRequests(ctx, filter)
}

// Approve moves a request to approved and hands it to the download hook.
func (s *Service) Approve(ctx context.Context, admin *store.User, id int64) (*store.Request, error) {
	req, err := s.transition(ctx, admin, id, store.StatusApproved)
	if err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, s.logger).With(logging.String(logging.FieldCatalogID, req.TMDBID))
	logger.Info("request approved, ready for download/manual processing",
		logging.Int64(logging.FieldRequestID, req.ID),
		logging.String("title", req.Title),
		logging.String("media_type", req.MediaType),
		logging.String("imdb_id", req.IMDBID),
		logging.String("tvdb_id", req.TVDBID),
	)
	s.publish(ctx, logger, notifications.EventRequestApproved, req, req.UserName)
	return req, nil
}

// Reject moves a request to rejected.
func (s *Service) Reject(ctx context.Context, admin *store.User, id int64) (*store.Request, error) {
	req, err := s.transition(ctx, admin, id, store.StatusRejected)
	if err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, s.logger)
	logger.Info("request rejected", logging.Int64(logging.FieldRequestID, req.ID), logging.String(logging.FieldCatalogID, req.TMDBID))
	s.publish(ctx, logger, notifications.EventRequestRejected, req, req.UserName)
	return req, nil
}

func (s *Service) transition(ctx context.Context, admin *store.User, id int64, status store.Status) (*store.Request, error) {
	if !admin.IsAdmin() {
		return nil, errAdminRequired
	}
	req, err := s.store.SetStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("set status %s: %w", status, err)
	}
	if req == nil {
		return nil, errRequestNotFound
	}
	return req, nil
}

// Cancel deletes a pending request identified by catalog id and season. Non-admins can
// only cancel their own requests. The deleted row is returned.
func (s *Service) Cancel(ctx context.Context, user *store.User, tmdbID string, season *int) (*store.Request, error) {
	if user == nil {
		return nil, services.Wrap(services.ErrUnauthorized, "subscriptions", "cancel", "no user", nil)
	}
	req, err := s.store.FindByKey(ctx, store.Key{TMDBID: strings.TrimSpace(tmdbID), Season: season})
	if err != nil {
		return nil, fmt.Errorf("find request: %w", err)
	}
	if req == nil || (!user.IsAdmin() && req.UserID != user.ID) {
		return nil, errRequestNotFound
	}
	if req.Status != store.StatusPending {
		return nil, errNotCancellable
	}
	deleted, err := s.store.DeletePending(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("delete request: %w", err)
	}
	if !deleted {
		return nil, errNotCancellable
	}
	logging.WithContext(ctx, s.logger).Info("request cancelled",
		logging.Int64(logging.FieldRequestID, req.ID),
		logging.String(logging.FieldCatalogID, req.TMDBID),
	)
	return req, nil
}

func (s *Service) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, req *store.Request, userName string) {
	payload := notifications.Payload{
		"title":     req.Title,
		"mediaType": req.MediaType,
		"season":    req.SpecificSeason,
		"user":      userName,
	}
	if err := s.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logger, "operator notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "operator was not notified"),
		)
	}
}
