package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func authTestRouter(validKeys []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Auth(validKeys))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestAuth(t *testing.T) {
	cases := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusUnauthorized},
		{"valid key", "secret-1", http.StatusOK},
		{"second valid key", "secret-2", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := authTestRouter([]string{"secret-1", "secret-2"})

			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tc.key != "" {
				req.Header.Set("X-API-Key", tc.key)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d (body %s)", w.Code, tc.wantStatus, w.Body.String())
			}
		})
	}
}
