// Package notifications pushes mesh state changes to an ntfy topic.
//
// NewService returns a no-op implementation when no topic is configured.
// Observer sits between the endpoint and its metrics observer and turns state
// transitions into alerts on a background worker, so the endpoint inbox never
// waits on HTTP.
package notifications
