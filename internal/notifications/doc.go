// Package notifications delivers operation outcomes via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set. The
// pipeline depends only on the simple Service interface, so alternative
// transports slot in without touching scheduler code.
package notifications
