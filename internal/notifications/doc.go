// Package notifications publishes producer and collector events to ntfy.
//
// Publishing is best effort: callers log a failed publish and carry on. When
// no topic is configured NewService returns a no-op implementation, so the
// producer and collector can publish unconditionally.
package notifications
