// Package subscriptions implements the subscription request lifecycle (create, list,
// approve, reject, cancel) and the per-user notification inbox on top of the store.
//
// Errors carry services markers so the HTTP layer can map them to status codes; the
// detail text of user-facing errors is the exact message returned to API clients.
package subscriptions
