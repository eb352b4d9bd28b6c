// Package daemon runs the long-lived embysubd process.
//
// It wires the request store, authentication, subscription and media services
// into a chi router and supervises the HTTP server together with the reconcile
// job in a suture tree. A flock-based lock prevents multiple instances from
// sharing one data directory.
//
// Keep orchestration and HTTP translation here: request semantics belong in
// internal/subscriptions and catalog annotation in internal/media.
package daemon
