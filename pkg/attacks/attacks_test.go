package attacks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"authfuzz/pkg/capture"
	"authfuzz/pkg/jwtutil"
	"authfuzz/pkg/testutil"
	"authfuzz/pkg/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func token(t *testing.T, header, claims map[string]interface{}) string {
	t.Helper()
	enc := func(v interface{}) string {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	return enc(header) + "." + enc(claims) + ".sig"
}

func authedEndpoint() *capture.Endpoint {
	return &capture.Endpoint{
		Method:        "GET",
		BaseURL:       "http://lab.local",
		Path:          "/whoami",
		Headers:       map[string]string{"Authorization": "Bearer old", "Accept": "application/json", "Content-Length": "12", "Host": "lab.local"},
		HasAuthHeader: true,
	}
}

func TestBuildRequestStripsForbiddenHeaders(t *testing.T) {
	ep := authedEndpoint()
	ep.Query = map[string][]string{"id": {"7"}}
	ep.Body = "x=1"
	ac := &capture.AuthContext{
		Headers: map[string]string{"User-Agent": "capture", "Accept": "*/*", "Connection": "keep-alive", "Cookie": "a=1", "transfer-encoding": "chunked"},
	}

	req := BuildRequest(ep, ac)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "http://lab.local/whoami?id=7", req.URL)
	assert.Equal(t, "x=1", req.Body)
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "capture", req.Header.Get("User-Agent"))
	for _, h := range []string{"Content-Length", "Host", "Connection", "Transfer-Encoding", "Authorization", "Cookie"} {
		assert.Empty(t, req.Header.Get(h), h)
	}
}

func TestJWTReplay(t *testing.T) {
	ac := &capture.AuthContext{Tokens: []string{"abc.def.ghi", "xyz"}, Cookies: map[string]string{"sid": "1"}}
	doer := testutil.NewRecordingDoer(func(req *transport.Request) (*transport.Response, error) {
		if req.Header.Get("Authorization") == "Bearer xyz" {
			return testutil.Status(http.StatusUnauthorized, "nope"), nil
		}
		return testutil.Status(http.StatusOK, strings.Repeat("a", 600)), nil
	})

	s := NewJWTReplay(nil)
	require.True(t, s.Applicable(authedEndpoint(), ac))

	results, err := s.Run(context.Background(), authedEndpoint(), ac, doer)
	require.NoError(t, err)

	reqs := doer.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "Bearer abc.def.ghi", reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "Bearer xyz", reqs[1].Header.Get("Authorization"))
	assert.Empty(t, reqs[0].Header.Get("Cookie"))

	require.Len(t, results, 1)
	assert.Equal(t, VulnJWTReplay, results[0].Vulnerability)
	assert.Equal(t, SeverityHigh, results[0].Severity)
	assert.Equal(t, "GET http://lab.local/whoami", results[0].Endpoint)
	assert.Equal(t, "abc.def.ghi", results[0].Evidence["token_prefix"])
	assert.Len(t, results[0].Evidence["response_sample"], SampleLimit)
}

func TestJWTReplayNotApplicable(t *testing.T) {
	s := NewJWTReplay(nil)
	ep := authedEndpoint()
	assert.False(t, s.Applicable(ep, &capture.AuthContext{}))

	ep.HasAuthHeader = false
	assert.False(t, s.Applicable(ep, &capture.AuthContext{Tokens: []string{"t"}}))
}

func TestJWTReplayAbsorbsTransportErrors(t *testing.T) {
	ac := &capture.AuthContext{Tokens: []string{"a", "b"}}
	doer := testutil.FailingDoer()

	results, err := NewJWTReplay(nil).Run(context.Background(), authedEndpoint(), ac, doer)
	assert.NoError(t, err)
	assert.Empty(t, results)
	assert.Len(t, doer.Requests(), 2)
}

func TestJWTRoleEscalation(t *testing.T) {
	user := token(t, map[string]interface{}{"alg": "HS256", "typ": "JWT"}, map[string]interface{}{"sub": "1", "role": "user"})
	admin := token(t, map[string]interface{}{"alg": "HS256"}, map[string]interface{}{"role": "admin"})
	noRole := token(t, map[string]interface{}{"alg": "HS256"}, map[string]interface{}{"sub": "2"})
	ac := &capture.AuthContext{Tokens: []string{admin, "garbage", noRole, user}}

	doer := testutil.NewRecordingDoer(nil)
	results, err := NewJWTRoleEscalation(nil).Run(context.Background(), authedEndpoint(), ac, doer)
	require.NoError(t, err)

	reqs := doer.Requests()
	require.Len(t, reqs, 1, "only the non-admin token with a role claim is forged")

	forged := strings.TrimPrefix(reqs[0].Header.Get("Authorization"), "Bearer ")
	d := jwtutil.Decode(forged)
	require.True(t, d.OK)
	assert.Equal(t, "admin", d.Claims["role"])
	assert.Equal(t, "1", d.Claims["sub"])
	assert.Equal(t, "HS256", d.Alg())

	require.Len(t, results, 1)
	assert.Equal(t, VulnJWTRoleEscalation, results[0].Vulnerability)
	assert.Equal(t, "user", results[0].Evidence["original_role"])
	assert.Equal(t, jwtutil.Prefix(forged, TokenPrefixLen), results[0].Evidence["token_prefix"])
}

func TestJWTRoleEscalationSkipsAdminAndUnsignable(t *testing.T) {
	admin := token(t, map[string]interface{}{"alg": "HS256"}, map[string]interface{}{"role": "admin"})
	rsa := token(t, map[string]interface{}{"alg": "RS256"}, map[string]interface{}{"role": "user"})
	ac := &capture.AuthContext{Tokens: []string{admin, rsa}}

	doer := testutil.NewRecordingDoer(nil)
	results, err := NewJWTRoleEscalation(nil).Run(context.Background(), authedEndpoint(), ac, doer)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, doer.Requests())
}

func TestSessionFixationApplicable(t *testing.T) {
	s := NewSessionFixation(nil)
	ep := authedEndpoint()

	tests := []struct {
		name    string
		cookies map[string]string
		want    bool
	}{
		{"jsessionid upper case", map[string]string{"JSESSIONID": "x"}, true},
		{"phpsessid", map[string]string{"PHPSESSID": "x"}, true},
		{"sid substring", map[string]string{"connect.sid": "x"}, true},
		{"csrf only", map[string]string{"csrf_token": "y"}, false},
		{"no cookies", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Applicable(ep, &capture.AuthContext{Cookies: tt.cookies}))
		})
	}
}

func TestSessionFixationRun(t *testing.T) {
	ac := &capture.AuthContext{
		Cookies: map[string]string{"PHPSESSID": "abc", "security": "low", "sid": "9"},
		Tokens:  []string{"t"},
	}
	doer := testutil.NewRecordingDoer(nil)

	results, err := NewSessionFixation(nil).Run(context.Background(), authedEndpoint(), ac, doer)
	require.NoError(t, err)

	reqs := doer.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "PHPSESSID=abc; security=low; sid=9", reqs[0].Header.Get("Cookie"))
	assert.Empty(t, reqs[0].Header.Get("Authorization"))

	require.Len(t, results, 1)
	assert.Equal(t, VulnSessionFixation, results[0].Vulnerability)
	assert.Equal(t, SeverityMedium, results[0].Severity)
	assert.Equal(t, []string{"PHPSESSID", "sid"}, results[0].Evidence["session_cookies"])
}

func TestCatalogSelect(t *testing.T) {
	cat := DefaultCatalog()
	assert.Equal(t, []string{"jwt_role_escalation", "jwt_replay", "session_fixation"}, cat.Names())

	sub, err := cat.Select("session_fixation", "jwt_replay")
	require.NoError(t, err)
	assert.Equal(t, []string{"jwt_replay", "session_fixation"}, sub.Names())

	_, err = cat.Select("sqli")
	assert.Error(t, err)
}
