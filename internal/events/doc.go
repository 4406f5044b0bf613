// Package events implements the per-operation fan-out hub delivering live
// progress events to stream subscribers.
package events
