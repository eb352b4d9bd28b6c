// Package api defines wire-format types and converters for the HTTP API. It
// translates store records, catalog payloads and job summaries into the
// snake_case JSON documents the web frontend consumes.
//
// # Key Types
//
// MediaItem, MediaDetails, SeasonDetails, PersonDetails: catalog payloads with
// the library/request status annotations (status, emby_id, request_user_id,
// media_info, existing_episode_count, subscription_status, is_in_library).
//
// Request, Notification, User, Token: transport forms of store records and the
// login response.
//
// DaemonStatus: lock and database paths, request counts per status, and the
// reconciliation job state.
//
// # Design Notes
//
// Request statuses are exposed lowercase as stored; catalog statuses are
// uppercase (AVAILABLE, PENDING, UNKNOWN, ...). Timestamps use RFC3339 with
// milliseconds in UTC. Slice converters never return nil so empty lists encode
// as [] rather than null.
package api
