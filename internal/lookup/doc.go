// Package lookup resolves book metadata from an Open Library compatible
// search endpoint and backfills the catalog with it.
package lookup
