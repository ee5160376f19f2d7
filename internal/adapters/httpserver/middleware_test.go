package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimitKeysByHost(t *testing.T) {
	passed := 0
	h := RateLimit(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		passed++
	}))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// puertos efímeros distintos del mismo host comparten cuota
	if c := send("10.0.0.1:1111"); c != 200 {
		t.Fatalf("primer request: %d", c)
	}
	if c := send("10.0.0.1:2222"); c != 200 {
		t.Fatalf("segundo request: %d", c)
	}
	if c := send("10.0.0.1:3333"); c != http.StatusTooManyRequests {
		t.Fatalf("tercer request del mismo host: code = %d, want 429", c)
	}

	// otro host arranca con cuota propia
	if c := send("10.0.0.2:4444"); c != 200 {
		t.Fatalf("host distinto quedó limitado: %d", c)
	}
	if passed != 3 {
		t.Fatalf("llegaron %d requests al handler, want 3", passed)
	}
}
