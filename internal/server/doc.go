// Package server exposes the operation pipeline over HTTP: non-blocking
// submission, status reads, best-effort cancellation, and a per-operation SSE
// progress stream with comment heartbeats.
package server
