// Package workerpool runs per-item work across a bounded set of goroutines
// while keeping result collection single-threaded.
package workerpool
