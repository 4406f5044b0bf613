// Package daemon composes the stores, scheduler, runners, and API server
// into a single lifecycle with flock-based locking to prevent multiple
// instances from sharing one state directory.
package daemon
