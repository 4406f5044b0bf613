package lookup_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"shelf/internal/config"
	"shelf/internal/lookup"
	"shelf/internal/services"
)

func newClient(t *testing.T, handler http.HandlerFunc) *lookup.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Lookup.BaseURL = server.URL
	return lookup.NewClient(&cfg)
}

func TestClientLookupParsesBestMatch(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("title"); got != "a wizard of earthsea" {
			t.Errorf("title query = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"docs":[{"title":"A Wizard of Earthsea","author_name":["Ursula K. Le Guin"],"first_publish_year":1968}]}`))
	})

	result, err := client.Lookup(context.Background(), "a wizard of earthsea")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if result.Author != "Ursula K. Le Guin" {
		t.Fatalf("author = %q", result.Author)
	}
	if result.Title != "A Wizard of Earthsea" || result.Year != 1968 {
		t.Fatalf("result = %+v", result)
	}
}

func TestClientLookupNoHits(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"docs":[]}`))
	})

	_, err := client.Lookup(context.Background(), "no such book")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestClientLookupServerError(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	})

	_, err := client.Lookup(context.Background(), "anything")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
}

func TestClientLookupEmptyTitle(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent for empty title")
	})

	_, err := client.Lookup(context.Background(), "   ")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
