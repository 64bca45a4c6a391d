package utils_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"opendays/utils"
)

func TestCookieExists(t *testing.T) {
	tests := []struct {
		name    string
		cookies []*http.Cookie
		want    bool
	}{
		{name: "session cookie with value", cookies: []*http.Cookie{{Name: utils.SessionCookieName, Value: "tok.sig"}}, want: true},
		{name: "session cookie among others", cookies: []*http.Cookie{{Name: "theme", Value: "dark"}, {Name: utils.SessionCookieName, Value: "tok.sig"}}, want: true},
		{name: "blank session cookie", cookies: []*http.Cookie{{Name: utils.SessionCookieName, Value: ""}}},
		{name: "only unrelated cookies", cookies: []*http.Cookie{{Name: "theme", Value: "dark"}}},
		{name: "no cookies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for _, c := range tt.cookies {
				req.AddCookie(c)
			}
			if got := utils.CookieExists(req, utils.SessionCookieName); got != tt.want {
				t.Errorf("CookieExists(%s) = %v, want %v", utils.SessionCookieName, got, tt.want)
			}
		})
	}
}

func TestGetUserAgent(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      string
	}{
		{
			name:      "Standard user agent",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			want:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		},
		{
			name:      "Empty user agent",
			userAgent: "",
			want:      "",
		},
		{
			name:      "Bot user agent",
			userAgent: "Googlebot/2.1 (+http://www.google.com/bot.html)",
			want:      "Googlebot/2.1 (+http://www.google.com/bot.html)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("User-Agent", tt.userAgent)

			if got := utils.GetUserAgent(req); got != tt.want {
				t.Errorf("GetUserAgent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		setupReq   func() *http.Request
		want       string
	}{
		{
			name:       "X-Forwarded-For honoured behind trusted proxy",
			trustProxy: true,
			setupReq: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.Header.Set("X-Forwarded-For", "203.0.113.195")
				req.RemoteAddr = "192.168.1.1:12345"
				return req
			},
			want: "203.0.113.195",
		},
		{
			name:       "X-Forwarded-For ignored without trusted proxy",
			trustProxy: false,
			setupReq: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.Header.Set("X-Forwarded-For", "203.0.113.195")
				req.RemoteAddr = "192.168.1.1:12345"
				return req
			},
			want: "192.168.1.1",
		},
		{
			name:       "First entry of multiple X-Forwarded-For IPs",
			trustProxy: true,
			setupReq: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.Header.Set("X-Forwarded-For", "203.0.113.195, 70.41.3.18, 150.172.238.178")
				return req
			},
			want: "203.0.113.195",
		},
		{
			name:       "Empty X-Forwarded-For falls back to RemoteAddr",
			trustProxy: true,
			setupReq: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.Header.Set("X-Forwarded-For", "")
				req.RemoteAddr = "192.168.1.1:12345"
				return req
			},
			want: "192.168.1.1",
		},
		{
			name: "IPv6 RemoteAddr",
			setupReq: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.RemoteAddr = "[2001:db8:85a3::8a2e:370:7334]:443"
				return req
			},
			want: "2001:db8:85a3::8a2e:370:7334",
		},
		{
			name: "RemoteAddr without port",
			setupReq: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.RemoteAddr = "10.0.0.7"
				return req
			},
			want: "10.0.0.7",
		},
		{
			name: "No address at all",
			setupReq: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.RemoteAddr = ""
				return req
			},
			want: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.setupReq()
			if got := utils.GetIP(req, tt.trustProxy); got != tt.want {
				t.Errorf("GetIP() = %v, want %v", got, tt.want)
			}
		})
	}
}
