package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracingMiddlewareSetsRequestID(t *testing.T) {
	var seen string
	r := mux.NewRouter()
	r.Use(TracingMiddleware)
	r.HandleFunc("/api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/sessions/s1", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRouteTemplate(t *testing.T) {
	var tpl string
	r := mux.NewRouter()
	r.HandleFunc("/api/sessions/{id}/operations", func(w http.ResponseWriter, r *http.Request) {
		tpl = routeTemplate(r)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/sessions/abc/operations", nil))
	assert.Equal(t, "/api/sessions/{id}/operations", tpl)

	assert.Equal(t, "unmatched", routeTemplate(httptest.NewRequest("GET", "/x", nil)))
}

func TestErrorRecoveryMiddleware(t *testing.T) {
	h := ErrorRecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/api/sessions", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDHelpers(t *testing.T) {
	assert.Equal(t, "unknown", GetRequestID(context.Background()))
	assert.Equal(t, "r1", GetRequestID(WithRequestID(context.Background(), "r1")))
}

func TestHijackRequiresHijacker(t *testing.T) {
	w := &responseWriterWrapper{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	_, _, err := w.Hijack()
	assert.Error(t, err)
}

func TestCollabAttributes(t *testing.T) {
	tests := []struct {
		name     string
		template string
		path     string
		want     map[string]string
	}{
		{"session route", "/api/sessions/{id}/cursors/{user_id}", "/api/sessions/s1/cursors/alice",
			map[string]string{"collab.session_id": "s1", "collab.user_id": "alice"}},
		{"file route", "/api/files/{id}/conflicts", "/api/files/f1/conflicts",
			map[string]string{"collab.file_id": "f1"}},
		{"websocket user from query", "/ws/sessions/{id}", "/ws/sessions/s2?user_id=bob",
			map[string]string{"collab.session_id": "s2", "collab.user_id": "bob"}},
		{"no ids", "/api/health", "/api/health", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := map[string]string{}
			r := mux.NewRouter()
			r.HandleFunc(tt.template, func(w http.ResponseWriter, r *http.Request) {
				for _, kv := range collabAttributes(r, routeTemplate(r)) {
					got[string(kv.Key)] = kv.Value.AsString()
				}
			})

			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", tt.path, nil))
			assert.Equal(t, tt.want, got)
		})
	}
}
