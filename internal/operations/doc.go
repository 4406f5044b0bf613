// Package operations is the pipeline core: a SQLite-backed status store, a
// bounded FIFO scheduler that executes one operation at a time, and the
// reporter collaborators use to record progress. Submissions never block;
// cancellation is cooperative through the operation's context.
package operations
