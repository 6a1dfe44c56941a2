package httpapi

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-relay-bot/internal/config"
	"github.com/tbourn/go-relay-bot/internal/domain"
	"github.com/tbourn/go-relay-bot/internal/http/handlers"
)

type countingDispatcher struct{ n int }

func (d *countingDispatcher) Dispatch(context.Context, domain.Event) error {
	d.n++
	return nil
}

func testConfig() config.Config {
	return config.Config{
		RateRPS:   100,
		RateBurst: 2,
		OTEL:      config.OTELConfig{ServiceName: "relay-test"},
		BotToken:  "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw",
	}
}

func newRouter(t *testing.T, cfg config.Config, wh *handlers.WebhookHandler) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, wh, cfg)
	return r
}

func do(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const update = `{"update_id":1,"message":{"message_id":1,"chat":{"id":7,"type":"private"},"text":"hi"}}`

func TestRoutes_HealthCORSAndSecurity(t *testing.T) {
	r := newRouter(t, testConfig(), &handlers.WebhookHandler{Dispatcher: &countingDispatcher{}})

	w := do(r, http.MethodGet, "/health", "", map[string]string{"Origin": "https://ops.example"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"relay":"ready"`) {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("ACAO = %q", got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" || w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("security/request id headers missing: %v", w.Header())
	}
}

func TestRoutes_CORSAllowList(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"https://ops.example"}
	r := newRouter(t, cfg, &handlers.WebhookHandler{Dispatcher: &countingDispatcher{}})

	w := do(r, http.MethodGet, "/health", "", map[string]string{"Origin": "https://ops.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example" {
		t.Fatalf("ACAO = %q", got)
	}
	w = do(r, http.MethodGet, "/health", "", map[string]string{"Origin": "https://evil.example"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign origin = %d", w.Code)
	}
}

func TestRoutes_MetricsGzip(t *testing.T) {
	r := newRouter(t, testConfig(), &handlers.WebhookHandler{Dispatcher: &countingDispatcher{}})
	_ = do(r, http.MethodPost, "/webhook", update, nil)

	w := do(r, http.MethodGet, "/metrics", "", map[string]string{"Accept-Encoding": "gzip"})
	if w.Code != http.StatusOK || w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("metrics = %d %v", w.Code, w.Header())
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	body, _ := io.ReadAll(zr)
	if !strings.Contains(string(body), `http_requests_total{method="POST",path="/webhook",status="200"}`) {
		t.Fatalf("webhook not counted in metrics")
	}
}

func TestRoutes_WebhookAndRateLimit(t *testing.T) {
	d := &countingDispatcher{}
	r := newRouter(t, testConfig(), &handlers.WebhookHandler{Dispatcher: d})

	for i := 0; i < 2; i++ {
		if w := do(r, http.MethodPost, "/webhook", update, nil); w.Code != http.StatusOK {
			t.Fatalf("webhook %d = %d", i, w.Code)
		}
	}
	if w := do(r, http.MethodPost, "/webhook", update, nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("burst exceeded = %d", w.Code)
	}
	if d.n != 2 {
		t.Fatalf("dispatched %d", d.n)
	}
}

func TestRoutes_WebhookBodyLimit(t *testing.T) {
	r := newRouter(t, testConfig(), &handlers.WebhookHandler{Dispatcher: &countingDispatcher{}})
	big := `{"update_id":1,"message":{"message_id":1,"chat":{"id":7},"text":"` + strings.Repeat("a", MaxUpdateBytes) + `"}}`
	if w := do(r, http.MethodPost, "/webhook", big, nil); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized = %d", w.Code)
	}
}

func TestRoutes_DegradedRelay(t *testing.T) {
	r := newRouter(t, testConfig(), &handlers.WebhookHandler{Dispatcher: &countingDispatcher{}, ConfigErr: errors.New("GROUP_ID is not set")})
	if w := do(r, http.MethodPost, "/webhook", update, nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("webhook = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("health must stay up, got %d", w.Code)
	}
}

func TestRoutes_FallbacksAndSwagger(t *testing.T) {
	r := newRouter(t, testConfig(), &handlers.WebhookHandler{Dispatcher: &countingDispatcher{}})
	if w := do(r, http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), handlers.ErrCodeNotFound) {
		t.Fatalf("404 = %d %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodGet, "/webhook", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("405 = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/swagger/index.html", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger served while disabled: %d", w.Code)
	}

	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r = newRouter(t, cfg, &handlers.WebhookHandler{Dispatcher: &countingDispatcher{}})
	w := do(r, http.MethodGet, "/swagger/doc.json", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/webhook") {
		t.Fatalf("swagger doc = %d", w.Code)
	}
}
