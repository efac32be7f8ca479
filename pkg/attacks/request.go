package attacks

import (
	"net/http"
	"sort"
	"strings"

	"authfuzz/pkg/capture"
	"authfuzz/pkg/transport"
)

// forbiddenHeaders are recomputed by the transport and must not be replayed.
var forbiddenHeaders = map[string]bool{
	"content-length":    true,
	"transfer-encoding": true,
	"host":              true,
	"connection":        true,
}

// credentialHeaders are replaced per strategy.
var credentialHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
}

// BuildRequest reconstructs the endpoint's original request: the context's
// baseline headers overlaid with the endpoint's own observed headers, minus
// forbidden and credential headers. Callers attach the credential under test.
func BuildRequest(ep *capture.Endpoint, ac *capture.AuthContext) *transport.Request {
	merged := make(map[string]string, len(ac.Headers)+len(ep.Headers))
	for k, v := range ac.Headers {
		merged[strings.ToLower(k)] = v
	}
	for k, v := range ep.Headers {
		merged[strings.ToLower(k)] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		if forbiddenHeaders[k] || credentialHeaders[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := make(http.Header, len(keys)+1)
	for _, k := range keys {
		h.Set(k, merged[k])
	}

	return &transport.Request{
		Method: ep.Method,
		URL:    ep.URL(),
		Header: h,
		Body:   ep.Body,
	}
}

// WithBearer returns a copy of req carrying token as its only credential.
func WithBearer(req *transport.Request, token string) *transport.Request {
	out := *req
	out.Header = req.Header.Clone()
	out.Header.Set("Authorization", "Bearer "+token)
	return &out
}

// WithCookies returns a copy of req carrying the cookie jar as its only
// credential. Cookies are written in key order.
func WithCookies(req *transport.Request, cookies map[string]string) *transport.Request {
	keys := make([]string, 0, len(cookies))
	for k := range cookies {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+cookies[k])
	}

	out := *req
	out.Header = req.Header.Clone()
	if len(pairs) > 0 {
		out.Header.Set("Cookie", strings.Join(pairs, "; "))
	}
	return &out
}
