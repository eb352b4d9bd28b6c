package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const userColumns = "id, name, role, created_at, last_login"

// UpsertUser records a successful Emby login. Name and role always follow Emby.
func (s *Store) UpsertUser(ctx context.Context, id, name string, role Role) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("user id is required")
	}
	if role != RoleAdmin {
		role = RoleUser
	}
	now := formatTime(time.Now())
	_, err := s.execWithRetry(ctx, "upsert_user",
		`INSERT INTO users (id, name, role, created_at, last_login)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role, last_login = excluded.last_login`,
		id, name, string(role), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// GetUser fetches a user by Emby id. Missing users yield nil, nil.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// ListUsers returns all known users ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+userColumns+` FROM users ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(scanner interface{ Scan(dest ...any) error }) (*User, error) {
	var (
		user       User
		role       string
		createdRaw string
		lastLogin  sql.NullString
	)
	if err := scanner.Scan(&user.ID, &user.Name, &role, &createdRaw, &lastLogin); err != nil {
		return nil, err
	}
	user.Role = Role(role)
	if created, err := parseTimeString(createdRaw); err == nil {
		user.CreatedAt = created
	}
	if lastLogin.Valid {
		if ts, err := parseTimeString(lastLogin.String); err == nil {
			user.LastLogin = &ts
		}
	}
	return &user, nil
}
