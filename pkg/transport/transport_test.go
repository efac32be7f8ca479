package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Seen-Auth", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(r.Method + ":" + string(body)))
	}))
	defer srv.Close()

	c, err := New(Config{})
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    srv.URL + "/login",
		Header: http.Header{"Authorization": {"Bearer t"}},
		Body:   "user=a",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Bearer t", resp.Header.Get("X-Seen-Auth"))
	assert.Equal(t, "POST:user=a", string(resp.Body))
	assert.Equal(t, "POST", resp.Text(4))
}

func TestClientDoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
			return
		}
		w.Write([]byte("end"))
	}))
	defer srv.Close()

	c, err := New(Config{})
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), &Request{URL: srv.URL + "/start"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestNewRejectsBadProxy(t *testing.T) {
	_, err := New(Config{Proxy: "::not a url"})
	assert.Error(t, err)
}

func TestWithJarKeepsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "fixed", Path: "/"})
			return
		}
		c, err := r.Cookie("PHPSESSID")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(c.Value))
	}))
	defer srv.Close()

	base, err := New(Config{})
	require.NoError(t, err)
	session, jar, err := base.WithJar()
	require.NoError(t, err)

	_, err = session.Do(context.Background(), &Request{URL: srv.URL + "/set"})
	require.NoError(t, err)
	resp, err := session.Do(context.Background(), &Request{URL: srv.URL + "/get"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", string(resp.Body))

	u, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.Len(t, jar.Cookies(u.URL), 1)

	// the base client has no jar
	resp, err = base.Do(context.Background(), &Request{URL: srv.URL + "/get"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, strings.Contains(string(resp.Body), "fixed"))
}
