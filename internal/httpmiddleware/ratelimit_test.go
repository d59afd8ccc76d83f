package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestAllowRefills(t *testing.T) {
	now := time.Date(2024, 6, 14, 18, 0, 0, 0, time.UTC)
	l := NewClientLimiter(60, 2)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst not honoured")
	}
	if l.Allow("a") {
		t.Error("third request within burst allowed")
	}
	if !l.Allow("b") {
		t.Error("clients share a bucket")
	}

	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Error("bucket did not refill")
	}
}

func TestIdleClientsSwept(t *testing.T) {
	now := time.Date(2024, 6, 14, 18, 0, 0, 0, time.UTC)
	l := NewClientLimiter(60, 1)
	l.now = func() time.Time { return now }
	l.Allow("a")
	l.Allow("b")

	now = now.Add(idleAfter + time.Minute)
	l.Allow("c")
	if n := l.size(); n != 1 {
		t.Errorf("clients = %d, want 1", n)
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewClientLimiter(60, 1).GinMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := []int{}
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}

	open := gin.New()
	open.Use(NewClientLimiter(0, 0).GinMiddleware())
	open.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		open.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusNoContent {
			t.Errorf("disabled limiter returned %d", w.Code)
		}
	}
}
