// Package importer moves audio files from the import folders into the
// library and catalogs them.
package importer
