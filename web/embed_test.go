package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWidgetHandler(t *testing.T) {
	t.Parallel()

	h := http.StripPrefix("/widget", WidgetHandler())

	tests := []struct {
		path     string
		contains string
	}{
		{"/widget/widget.js", "/ws/chat"},
		{"/widget/widget.css", ".leadbot-panel"},
		{"/widget/", "<script src=\"widget.js\""},
		{"/widget/pricing", "<script src=\"widget.js\""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Fatalf("body of %s missing %q", tt.path, tt.contains)
			}
		})
	}
}
