package organizer_test

import (
	"path/filepath"
	"testing"

	"shelf/internal/catalog"
	"shelf/internal/organizer"
)

func TestTargetPath(t *testing.T) {
	tests := []struct {
		name string
		book catalog.Book
		want string
	}{
		{
			name: "author and title",
			book: catalog.Book{Title: "a wizard of earthsea", Author: "ursula k. le guin", Extension: ".m4b"},
			want: filepath.Join("Ursula K Le Guin", "A Wizard Of Earthsea.m4b"),
		},
		{
			name: "series adds a folder level",
			book: catalog.Book{Title: "the tombs of atuan", Author: "le guin", Series: "earthsea", Extension: ".m4b"},
			want: filepath.Join("Le Guin", "Earthsea", "The Tombs Of Atuan.m4b"),
		},
		{
			name: "missing author falls back",
			book: catalog.Book{Title: "orphan", Extension: ".mp3"},
			want: filepath.Join("Unknown Author", "Orphan.mp3"),
		},
		{
			name: "unsafe characters stripped",
			book: catalog.Book{Title: "what/if: a*question?", Author: "someone", Extension: ".FLAC"},
			want: filepath.Join("Someone", "What If Aquestion.flac"),
		},
		{
			name: "empty after cleaning falls back",
			book: catalog.Book{Title: "***", Author: "???", Extension: ".ogg"},
			want: filepath.Join("Unknown Author", "Unknown Title.ogg"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := organizer.TargetPath("/lib", &tt.book)
			if got != filepath.Join("/lib", tt.want) {
				t.Fatalf("TargetPath = %q, want %q", got, filepath.Join("/lib", tt.want))
			}
		})
	}
}
