package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const notificationColumns = "id, user_id, title, message, is_read, created_at, related_subscription_id"

// ListNotifications returns a user's notifications newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string, skip, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, limit, skip,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// GetNotification fetches a notification by id. Missing rows yield nil, nil.
func (s *Store) GetNotification(ctx context.Context, id int64) (*Notification, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// MarkNotificationRead flips the read flag.
func (s *Store) MarkNotificationRead(ctx context.Context, id int64) error {
	if _, err := s.execWithRetry(ctx, "mark_read", `UPDATE notifications SET is_read = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// CountUnread returns the number of unread notifications for a user.
func (s *Store) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func scanNotification(scanner interface{ Scan(dest ...any) error }) (*Notification, error) {
	var (
		n          Notification
		isRead     int
		createdRaw string
		related    sql.NullInt64
	)
	if err := scanner.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &isRead, &createdRaw, &related); err != nil {
		return nil, err
	}
	n.IsRead = isRead != 0
	if ts, err := parseTimeString(createdRaw); err == nil {
		n.CreatedAt = ts
	}
	if related.Valid {
		id := related.Int64
		n.RelatedSubscriptionID = &id
	}
	return &n, nil
}
