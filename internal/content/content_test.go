package content

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestText_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("  Welcome aboard\n"))
	}))
	defer srv.Close()

	if got := NewFetcher(time.Second).Text(context.Background(), srv.URL, "fb"); got != "Welcome aboard" {
		t.Fatalf("Text = %q", got)
	}
}

func TestText_Fallbacks(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()
	blank := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("   "))
	}))
	defer blank.Close()
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer slow.Close()

	f := NewFetcher(50 * time.Millisecond)
	for name, url := range map[string]string{
		"empty url": "",
		"404":       notFound.URL,
		"blank":     blank.URL,
		"timeout":   slow.URL,
	} {
		if got := f.Text(context.Background(), url, "fb"); got != "fb" {
			t.Errorf("%s: Text = %q; want fallback", name, got)
		}
	}
}
