// Package scanner counts and catalogs the audio files in the library. The
// pre-count commits the operation total before any per-file work starts, so
// progress is always reported against a fixed denominator.
package scanner
