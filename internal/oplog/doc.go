// Package oplog persists per-operation progress events to append-only JSONL
// journals and republishes them to live stream subscribers.
package oplog
