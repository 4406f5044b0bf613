// Package catalog persists the audiobook library index. Entries are keyed by
// absolute file path; the scan, organize, import, and metadata operations all
// read and write through this store.
package catalog
