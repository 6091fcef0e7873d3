package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func corsEngine(cfg CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func corsRequest(r *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/ping", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSAllowAllOrigins(t *testing.T) {
	r := corsEngine(CORSConfig{AllowAllOrigins: true})

	w := corsRequest(r, http.MethodGet, "https://dash.example.com")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "false" {
		t.Errorf("Allow-Credentials = %q, want false (wildcard forbids credentials)", got)
	}
}

func TestCORSAllowlist(t *testing.T) {
	r := corsEngine(CORSConfig{AllowedOrigins: []string{"https://dash.example.com"}})

	w := corsRequest(r, http.MethodGet, "https://dash.example.com")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("allowed origin not echoed, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q, want true", got)
	}

	w = corsRequest(r, http.MethodGet, "https://evil.example.com")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Allow-Origin %q, want no header", got)
	}
	if w.Code != http.StatusOK {
		t.Errorf("disallowed origin status = %d, want 200 (request itself still served)", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := corsEngine(CORSConfig{AllowAllOrigins: true})

	w := corsRequest(r, http.MethodOptions, "https://dash.example.com")
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("preflight response missing Allow-Methods header")
	}
}
