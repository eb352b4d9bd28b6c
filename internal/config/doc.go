// Package config loads, normalizes, and validates subscription manager settings.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// EMBY_API_KEY, TMDB_API_KEY, SECRET_KEY and DATABASE_URL. A .env file in the
// working directory is loaded first so deployments that only ship environment
// files keep working.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, trimmed credentials, and clear validation errors.
package config
