package organizer

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"shelf/internal/catalog"
)

const (
	unknownAuthor = "Unknown Author"
	unknownTitle  = "Unknown Title"
)

// TargetPath computes the canonical library location for a book:
// Author/Title.ext, or Author/Series/Title.ext when the book belongs to a
// series. Path segments are cleaned for filesystem use and title-cased.
func TargetPath(libraryRoot string, book *catalog.Book) string {
	author := segment(book.Author, unknownAuthor)
	title := segment(book.Title, unknownTitle)

	parts := []string{libraryRoot, author}
	if series := segment(book.Series, ""); series != "" {
		parts = append(parts, series)
	}
	parts = append(parts, title+strings.ToLower(book.Extension))
	return filepath.Join(parts...)
}

// segment cleans a metadata value into one filesystem-safe, title-cased path
// element. Empty or fully stripped values fall back to the given default.
func segment(value, fallback string) string {
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\'' || r == ',' || r == '&':
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.' || r == '/':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	out := strings.TrimSpace(cleaned.String())
	if out == "" {
		return fallback
	}
	// Casers carry internal state, so build one per call instead of sharing.
	return cases.Title(language.Und).String(out)
}
