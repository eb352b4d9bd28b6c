// Package store persists users, subscription requests, and notifications in
// SQLite.
//
// Open applies the embedded goose migrations, enables WAL and foreign keys, and
// retries writes that hit SQLITE_BUSY. Lookups return nil, nil for missing rows;
// callers decide whether that is an error.
package store
