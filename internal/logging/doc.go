// Package logging wires log/slog with Shelf's console and JSON handlers and
// provides the attr helpers used across components.
package logging
