// Package metrics defines the Prometheus collectors exported on /metrics.
//
// Collectors register with the default registry at init time through promauto,
// so callers only use the Record helpers.
package metrics
