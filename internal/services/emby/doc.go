// Package emby is the media server inventory client.
//
// Client wraps the handful of Emby REST endpoints the subscription manager
// needs: user login, recently added items, provider id lookups, item details
// with media streams, episode listings and primary images. Requests always
// bypass environment proxies. BreakerClient layers a gobreaker circuit breaker
// over any Inventory so a struggling server fails fast instead of stalling
// status resolution and the reconciliation job.
package emby
