package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
)

func TestExtractUser(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{
			name:     "no headers returns empty",
			headers:  map[string]string{},
			expected: "",
		},
		{
			name: "X-Forwarded-User takes priority",
			headers: map[string]string{
				"X-Forwarded-User":  "alice",
				"X-Forwarded-Email": "alice@example.com",
			},
			expected: "alice",
		},
		{
			name: "X-Forwarded-Email used when no user",
			headers: map[string]string{
				"X-Forwarded-Email": "bob@example.com",
			},
			expected: "bob@example.com",
		},
		{
			name: "X-Remote-User used for API clients",
			headers: map[string]string{
				"X-Remote-User": "system:serviceaccount:ns:client",
			},
			expected: "system:serviceaccount:ns:client",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			assert.Equal(t, tt.expected, extractUser(c))
		})
	}
}

func TestIsDM(t *testing.T) {
	tests := []struct {
		name     string
		groups   string
		expected bool
	}{
		{name: "no groups header", groups: "", expected: false},
		{name: "dm group alone", groups: "dm", expected: true},
		{name: "dm among other groups", groups: "players, dm, admins", expected: true},
		{name: "substring does not match", groups: "dmz,admins", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.groups != "" {
				req.Header.Set("X-Forwarded-Groups", tt.groups)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			assert.Equal(t, tt.expected, isDM(c))
		})
	}
}
