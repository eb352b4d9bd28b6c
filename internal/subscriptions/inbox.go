package subscriptions

import (
	"context"
	"fmt"

	"embysub/internal/services"
	"embysub/internal/store"
)

var (
	errNotificationNotFound = services.Wrap(services.ErrNotFound, "", "", "Notification not found", nil)
	errNotYourNotification  = services.Wrap(services.ErrForbidden, "", "", "Not your notification", nil)
)

// Notifications lists the caller's inbox, newest first.
func (s *Service) Notifications(ctx context.Context, user *store.User, skip, limit int) ([]*store.Notification, error) {
	if user == nil {
		return nil, services.Wrap(services.ErrUnauthorized, "subscriptions", "notifications", "no user", nil)
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	return s.store.ListNotifications(ctx, user.ID, max(skip, 0), limit)
}

// MarkRead flags one of the caller's notifications as read and returns it.
func (s *Service) MarkRead(ctx context.Context, user *store.User, id int64) (*store.Notification, error) {
	if user == nil {
		return nil, services.Wrap(services.ErrUnauthorized, "subscriptions", "mark_read", "no user", nil)
	}
	note, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if note == nil {
		return nil, errNotificationNotFound
	}
	if note.UserID != user.ID {
		return nil, errNotYourNotification
	}
	if err := s.store.MarkNotificationRead(ctx, id); err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	note.IsRead = true
	return note, nil
}
