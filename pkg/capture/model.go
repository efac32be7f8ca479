package capture

import (
	"net/url"
	"strings"
)

// EndpointKey identifies a logical endpoint. Query and fragment are not part
// of the identity.
type EndpointKey struct {
	Method  string
	BaseURL string
	Path    string
}

type Endpoint struct {
	Method        string            `json:"method"`
	BaseURL       string            `json:"base_url"`
	Path          string            `json:"path"`
	Headers       map[string]string `json:"headers,omitempty"`
	Query         url.Values        `json:"query,omitempty"`
	Body          string            `json:"body,omitempty"`
	HasAuthHeader bool              `json:"has_auth_header"`
	HasAuthCookie bool              `json:"has_auth_cookie"`
}

func (e *Endpoint) Key() EndpointKey {
	return EndpointKey{Method: e.Method, BaseURL: e.BaseURL, Path: e.Path}
}

// Descriptor is the "METHOD url" form used in findings and logs.
func (e *Endpoint) Descriptor() string {
	return e.Method + " " + e.BaseURL + e.Path
}

// URL rebuilds the request URL with the observed query parameters.
func (e *Endpoint) URL() string {
	u := e.BaseURL + e.Path
	if len(e.Query) > 0 {
		u += "?" + e.Query.Encode()
	}
	return u
}

// AuthContext is the credential material observed across the whole capture.
type AuthContext struct {
	Cookies map[string]string `json:"cookies"`
	Headers map[string]string `json:"headers"`
	Tokens  []string          `json:"tokens"`
}

func NewAuthContext() *AuthContext {
	return &AuthContext{
		Cookies: make(map[string]string),
		Headers: make(map[string]string),
	}
}

// HasToken reports whether the bearer token was already collected.
func (a *AuthContext) HasToken(token string) bool {
	for _, t := range a.Tokens {
		if t == token {
			return true
		}
	}
	return false
}

// ParseCookieHeader splits a Cookie header into key/value pairs. Fragments
// without '=' are ignored.
func ParseCookieHeader(header string) map[string]string {
	cookies := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		cookies[k] = strings.TrimSpace(v)
	}
	return cookies
}

// BearerToken extracts the token from an Authorization value using the
// Bearer scheme, matched case-insensitively.
func BearerToken(value string) (string, bool) {
	const scheme = "bearer "
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < len(scheme) || !strings.EqualFold(trimmed[:len(scheme)], scheme) {
		return "", false
	}
	fields := strings.Fields(trimmed[len(scheme):])
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}
