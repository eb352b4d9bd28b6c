// Package tmdb wraps the TMDB REST API used as the metadata catalog.
//
// Every call carries the configured api key and language, honours an optional
// proxy, and is throttled by a token bucket. Payloads are decoded into typed
// structs that mirror TMDB's JSON so they can be re-encoded unchanged.
package tmdb
