package scanner

import (
	"io/fs"
	"path/filepath"
	"strings"

	"shelf/internal/catalog"
)

// Probe derives a catalog entry from a file's path and stat data alone. The
// layout convention is Author/Title.ext, optionally Author/Series/Title.ext;
// files outside that shape still catalog with whatever the path offers.
func Probe(root, path string, info fs.FileInfo) *catalog.Book {
	ext := strings.ToLower(filepath.Ext(path))
	book := &catalog.Book{
		Path:      path,
		Title:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Extension: ext,
	}
	if info != nil {
		book.SizeBytes = info.Size()
		mod := info.ModTime().UTC()
		book.ModifiedAt = &mod
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return book
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) >= 2 {
		book.Author = parts[0]
	}
	if len(parts) >= 3 {
		book.Series = parts[1]
	}
	return book
}
