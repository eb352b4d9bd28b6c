// Package notifications pushes operator alerts about subscription requests.
//
// The default implementation publishes to the ntfy topic configured in
// config.toml and degrades to a no-op when no topic is set. Each request event
// can be switched off individually. These pushes are separate from the in-app
// notification inbox kept in the store.
package notifications
