package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSPAHandler(t *testing.T) {
	h := SPAHandler()

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{"root", "/", http.StatusOK, "STEM Forge"},
		{"client route", "/battle", http.StatusOK, "STEM Forge"},
		{"nested client route", "/challenges/ohm", http.StatusOK, "STEM Forge"},
		{"unknown api path", "/api/nope", http.StatusNotFound, ""},
		{"unknown websocket path", "/ws/chat", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.wantCode {
				t.Fatalf("GET %s = %d, want %d", tt.path, w.Code, tt.wantCode)
			}
			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Fatalf("GET %s body missing %q", tt.path, tt.wantBody)
			}
		})
	}
}
