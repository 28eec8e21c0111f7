package images

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr bool
	}{
		{"protocol relative", "//cdn.shop.com/files/shirt.png", "https://cdn.shop.com/files/shirt.png", false},
		{"bare host", "cdn.shop.com/files/shirt.png", "https://cdn.shop.com/files/shirt.png", false},
		{"https kept", "https://cdn.shop.com/a.jpg?v=1", "https://cdn.shop.com/a.jpg?v=1", false},
		{"http kept", "http://cdn.shop.com/a.jpg", "http://cdn.shop.com/a.jpg", false},
		{"whitespace trimmed", "  //cdn.shop.com/a.jpg ", "https://cdn.shop.com/a.jpg", false},
		{"empty", "", "", true},
		{"only slashes", "//", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeURL(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		case "/empty.png":
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher()

	data, err := f.Fetch(context.Background(), srv.URL+"/ok.png")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("Fetch = %q, want %q", data, "png-bytes")
	}

	for _, path := range []string{"/missing.png", "/empty.png"} {
		_, err := f.Fetch(context.Background(), srv.URL+path)
		if !errors.Is(err, ErrFetchFailed) {
			t.Errorf("Fetch(%s) error = %v, want ErrFetchFailed", path, err)
		}
	}
}

func TestFetchCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewFetcher().Fetch(ctx, srv.URL); !errors.Is(err, ErrFetchFailed) {
		t.Errorf("Fetch with canceled context error = %v, want ErrFetchFailed", err)
	}
}
