package handlers

import (
	"net/http"
	"strconv"
	"testing"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestIsPublicPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		method string
		path   string
		want   bool
	}{
		{method: http.MethodGet, path: "/ping", want: true},
		{method: http.MethodPost, path: "/chat/webhook/fb", want: true},
		{method: http.MethodPost, path: "/chat/session", want: true},
		{method: http.MethodGet, path: "/chat/history/:id", want: true},
		{method: http.MethodGet, path: "/chat/ws/customer", want: true},
		{method: http.MethodGet, path: "/chat/ws/admin", want: false},
		{method: http.MethodPatch, path: "/chat/:id", want: false},
		{method: http.MethodDelete, path: "/chat/session", want: false},
		{method: http.MethodGet, path: "/tags", want: false},
	}
	for _, tc := range cases {
		if got := IsPublicPath(tc.method, tc.path); got != tc.want {
			t.Fatalf("%s %s: got %v want %v", tc.method, tc.path, got, tc.want)
		}
	}
}
