// AngelaMos | 2026
// origin_test.go

package core

import (
	"net/http/httptest"
	"testing"
)

func TestRequestOrigin(t *testing.T) {
	const fallback = "https://portal.example.com/"

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "origin header wins",
			headers: map[string]string{"Origin": "https://a.example.com", "X-Forwarded-Host": "b.example.com"},
			want:    "https://a.example.com",
		},
		{
			name:    "null origin is ignored",
			headers: map[string]string{"Origin": "null", "X-Forwarded-Host": "b.example.com"},
			want:    "https://b.example.com",
		},
		{
			name: "forwarded host uses forwarded proto",
			headers: map[string]string{
				"X-Forwarded-Host":  "b.example.com, internal:8080",
				"X-Forwarded-Proto": "http",
			},
			want: "http://b.example.com",
		},
		{
			name:    "referer keeps only scheme and host",
			headers: map[string]string{"Referer": "https://c.example.com/programs/x?y=1"},
			want:    "https://c.example.com",
		},
		{
			name:    "garbage referer falls back",
			headers: map[string]string{"Referer": "not a url"},
			want:    "https://portal.example.com",
		},
		{
			name: "no headers falls back",
			want: "https://portal.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/checkout", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			if got := RequestOrigin(r, fallback); got != tt.want {
				t.Errorf("RequestOrigin() = %q, want %q", got, tt.want)
			}
		})
	}
}
