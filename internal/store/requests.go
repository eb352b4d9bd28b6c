package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDuplicate is returned when a request already occupies the (catalog id, season) slot.
var ErrDuplicate = errors.New("request for this media already exists")

const requestColumns = "r.id, r.user_id, r.tmdb_id, r.media_type, r.title, r.poster_path, r.overview, r.release_date, r.specific_season, r.status, r.request_date, r.updated_at, r.comment, r.imdb_id, r.tvdb_id, IFNULL(u.name, '')"

const requestFrom = ` FROM subscription_requests r LEFT JOIN users u ON u.id = r.user_id`

func seasonKey(season *int) int {
	if season == nil {
		return -1
	}
	return *season
}

// InsertRequest stores a new pending request. A second row for the same key fails
// with ErrDuplicate.
func (s *Store) InsertRequest(ctx context.Context, req *Request) (*Request, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}
	if strings.TrimSpace(req.TMDBID) == "" {
		return nil, errors.New("tmdb id is required")
	}
	if req.Status == "" {
		req.Status = StatusPending
	}
	now := time.Now().UTC()
	if req.RequestDate.IsZero() {
		req.RequestDate = now
	}

	res, err := s.execWithRetry(ctx, "insert_request",
		`INSERT INTO subscription_requests (
            user_id, tmdb_id, media_type, title, poster_path, overview, release_date,
            specific_season, status, request_date, updated_at, comment, imdb_id, tvdb_id
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.UserID,
		req.TMDBID,
		req.MediaType,
		req.Title,
		nullableString(req.PosterPath),
		nullableString(req.Overview),
		nullableString(req.ReleaseDate),
		nullableInt(req.SpecificSeason),
		string(req.Status),
		formatTime(req.RequestDate),
		formatTime(now),
		nullableString(req.Comment),
		nullableString(req.IMDBID),
		nullableString(req.TVDBID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetRequest(ctx, id)
}

// ReviveRequest resets a rejected request owned by req.UserID back to pending with
// fresh display fields. It reports false when the row is no longer rejected or has a
// different owner.
func (s *Store) ReviveRequest(ctx context.Context, id int64, req *Request) (bool, error) {
	if req == nil {
		return false, errors.New("request is nil")
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx, "revive_request",
		`UPDATE subscription_requests
         SET status = ?, request_date = ?, updated_at = ?, comment = ?, media_type = ?,
             title = ?, poster_path = ?, overview = ?, release_date = ?, specific_season = ?
         WHERE id = ? AND status = ? AND user_id = ?`,
		string(StatusPending),
		now,
		now,
		nullableString(req.Comment),
		req.MediaType,
		req.Title,
		nullableString(req.PosterPath),
		nullableString(req.Overview),
		nullableString(req.ReleaseDate),
		nullableInt(req.SpecificSeason),
		id,
		string(StatusRejected),
		req.UserID,
	)
	if err != nil {
		return false, fmt.Errorf("revive request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// GetRequest fetches a request by primary key. Missing rows yield nil, nil.
func (s *Store) GetRequest(ctx context.Context, id int64) (*Request, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+requestColumns+requestFrom+` WHERE r.id = ?`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

// FindByKey returns the request occupying the given (catalog id, season) slot.
func (s *Store) FindByKey(ctx context.Context, key Key) (*Request, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+requestColumns+requestFrom+` WHERE r.tmdb_id = ? AND IFNULL(r.specific_season, -1) = ?`,
		key.TMDBID,
		seasonKey(key.Season),
	)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find request by key: %w", err)
	}
	return req, nil
}

// FirstByCatalogID returns the oldest request for a catalog id regardless of season.
func (s *Store) FirstByCatalogID(ctx context.Context, tmdbID string) (*Request, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+requestColumns+requestFrom+` WHERE r.tmdb_id = ? ORDER BY r.id LIMIT 1`,
		tmdbID,
	)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find request by catalog id: %w", err)
	}
	return req, nil
}

// ListByCatalogID returns every request for a catalog id, oldest first.
func (s *Store) ListByCatalogID(ctx context.Context, tmdbID string) ([]*Request, error) {
	return s.queryRequests(ctx, `WHERE r.tmdb_id = ? ORDER BY r.id`, tmdbID)
}

// ListByStatus returns every request in the given status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]*Request, error) {
	return s.queryRequests(ctx, `WHERE r.status = ? ORDER BY r.id`, string(status))
}

// ListRequests returns requests newest first, joined with the requester name.
func (s *Store) ListRequests(ctx context.Context, filter RequestFilter) ([]*Request, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.UserID != "" {
		clauses = append(clauses, "r.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "r.status = ?")
		args = append(args, string(filter.Status))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}
	args = append(args, limit, skip)
	return s.queryRequests(ctx, where+` ORDER BY r.request_date DESC, r.id DESC LIMIT ? OFFSET ?`, args...)
}

// SetStatus updates a request's status and returns the updated row, or nil when the
// request does not exist.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status) (*Request, error) {
	if _, ok := statusSet[status]; !ok {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	res, err := s.execWithRetry(ctx, "set_status",
		`UPDATE subscription_requests SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, nil
	}
	return s.GetRequest(ctx, id)
}

// DeletePending removes a request only while it is still pending. It reports whether
// a row was deleted.
func (s *Store) DeletePending(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, "delete_request",
		`DELETE FROM subscription_requests WHERE id = ? AND status = ?`,
		id, string(StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("delete request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// CompleteWithNotification marks an approved request completed and stores its
// notification in one transaction. When the row is no longer approved nothing is
// written and false is returned.
func (s *Store) CompleteWithNotification(ctx context.Context, id int64, title, message string) (bool, error) {
	var completed bool
	err := s.withTx(ctx, "complete_request", func(tx *sql.Tx) error {
		completed = false
		now := formatTime(time.Now())
		res, err := tx.ExecContext(ctx,
			`UPDATE subscription_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(StatusCompleted), now, id, string(StatusApproved),
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notifications (user_id, title, message, is_read, created_at, related_subscription_id)
             SELECT user_id, ?, ?, 0, ?, id FROM subscription_requests WHERE id = ?`,
			title, message, now, id,
		); err != nil {
			return err
		}
		completed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("complete request %d: %w", id, err)
	}
	return completed, nil
}

// CountByStatus returns the number of requests per status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(*) FROM subscription_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int, len(statusSet))
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

func (s *Store) queryRequests(ctx context.Context, clause string, args ...any) ([]*Request, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+requestColumns+requestFrom+` `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanRequest(scanner interface{ Scan(dest ...any) error }) (*Request, error) {
	var (
		req         Request
		posterPath  sql.NullString
		overview    sql.NullString
		releaseDate sql.NullString
		season      sql.NullInt64
		status      string
		requestRaw  string
		updatedRaw  string
		comment     sql.NullString
		imdbID      sql.NullString
		tvdbID      sql.NullString
	)
	if err := scanner.Scan(
		&req.ID,
		&req.UserID,
		&req.TMDBID,
		&req.MediaType,
		&req.Title,
		&posterPath,
		&overview,
		&releaseDate,
		&season,
		&status,
		&requestRaw,
		&updatedRaw,
		&comment,
		&imdbID,
		&tvdbID,
		&req.UserName,
	); err != nil {
		return nil, err
	}
	req.PosterPath = posterPath.String
	req.Overview = overview.String
	req.ReleaseDate = releaseDate.String
	req.Status = Status(status)
	req.Comment = comment.String
	req.IMDBID = imdbID.String
	req.TVDBID = tvdbID.String
	if season.Valid {
		value := int(season.Int64)
		req.SpecificSeason = &value
	}
	if ts, err := parseTimeString(requestRaw); err == nil {
		req.RequestDate = ts
	}
	if ts, err := parseTimeString(updatedRaw); err == nil {
		req.UpdatedAt = ts
	}
	return &req, nil
}
