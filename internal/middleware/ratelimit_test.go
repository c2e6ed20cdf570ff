package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func limiterUnderTest(t *testing.T, maxReqs, windowSec int) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	rl := NewRateLimiter(client, maxReqs, windowSec)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	return h, mr
}

func hitFrom(h http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows up to the limit then blocks", func(t *testing.T) {
		h, _ := limiterUnderTest(t, 3, 60)

		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusOK, hitFrom(h, "10.0.0.1:12345").Code)
		}

		rec := hitFrom(h, "10.0.0.1:12345")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())
	})

	t.Run("counts each source IP separately", func(t *testing.T) {
		h, _ := limiterUnderTest(t, 1, 60)

		assert.Equal(t, http.StatusOK, hitFrom(h, "1.1.1.1:1").Code)
		assert.Equal(t, http.StatusTooManyRequests, hitFrom(h, "1.1.1.1:1").Code)
		assert.Equal(t, http.StatusOK, hitFrom(h, "2.2.2.2:1").Code)
	})

	t.Run("window expiry admits again", func(t *testing.T) {
		h, mr := limiterUnderTest(t, 1, 1)

		assert.Equal(t, http.StatusOK, hitFrom(h, "4.4.4.4:1").Code)
		assert.Equal(t, http.StatusTooManyRequests, hitFrom(h, "4.4.4.4:1").Code)

		mr.FastForward(2e9)
		assert.Equal(t, http.StatusOK, hitFrom(h, "4.4.4.4:1").Code)
	})

	t.Run("fails open when redis is down", func(t *testing.T) {
		h, mr := limiterUnderTest(t, 1, 60)
		mr.Close()

		assert.Equal(t, http.StatusOK, hitFrom(h, "3.3.3.3:1").Code)
	})
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "192.0.2.10:5511", nil, "192.0.2.10"},
		{"x-forwarded-for single", "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "203.0.113.7"},
		{"x-forwarded-for chain takes first", "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"}, "203.0.113.7"},
		{"x-real-ip", "10.0.0.1:1", map[string]string{"X-Real-IP": "198.51.100.4"}, "198.51.100.4"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, clientIP(req))
		})
	}
}
