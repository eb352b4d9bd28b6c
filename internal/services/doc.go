// Package services defines shared utilities consumed by the HTTP handlers, the
// reconciliation job, and the external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp correlation identifiers, authenticated user
//     ids and reconciliation run ids for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent API status codes.
//
// Subpackages hold the media server integrations.
package services
