// Package notifications sends push notifications for visit lifecycle events
// via ntfy. When no topic is configured, a noop implementation is used.
package notifications
