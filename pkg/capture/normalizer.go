package capture

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"authfuzz/pkg/logger"
)

// Stats summarizes what the normalizer did with a capture log.
type Stats struct {
	Lines     int `json:"lines"`
	Records   int `json:"records"`
	Skipped   int `json:"skipped"`
	Discarded int `json:"discarded"`
}

// Result is the normalized view of a capture: endpoints in first-seen order
// and the synthesized credential contexts. There is currently exactly one
// context, merged across every captured session.
type Result struct {
	Endpoints []*Endpoint
	Contexts  []*AuthContext
	Stats     Stats
}

type Normalizer struct {
	logger *logger.Logger
}

func NewNormalizer(l *logger.Logger) *Normalizer {
	if l == nil {
		l = logger.Default()
	}
	return &Normalizer{logger: l}
}

// NormalizeFile normalizes the capture log at path. A capture log that does
// not exist yet yields an empty result.
func (n *Normalizer) NormalizeFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			n.logger.WithFields(logger.Fields{"capture": path}).Warn("capture log not found, nothing to normalize")
			return emptyResult(), nil
		}
		return nil, fmt.Errorf("open capture log: %w", err)
	}
	defer f.Close()

	return n.Normalize(f)
}

// Normalize reads line-delimited capture records. Malformed lines and records
// without a host are dropped; only read errors from r are returned.
func (n *Normalizer) Normalize(r io.Reader) (*Result, error) {
	res := emptyResult()
	ctx := res.Contexts[0]
	index := make(map[EndpointKey]*Endpoint)

	br := bufio.NewReader(r)
	for {
		line, readErr := br.ReadBytes('\n')
		if len(line) > 0 {
			n.consume(line, res, ctx, index)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("read capture log: %w", readErr)
		}
	}

	n.logger.WithFields(logger.Fields{
		"lines":     res.Stats.Lines,
		"records":   res.Stats.Records,
		"skipped":   res.Stats.Skipped,
		"discarded": res.Stats.Discarded,
		"endpoints": len(res.Endpoints),
		"tokens":    len(ctx.Tokens),
		"cookies":   len(ctx.Cookies),
	}).Info("capture normalized")

	return res, nil
}

func (n *Normalizer) consume(line []byte, res *Result, ac *AuthContext, index map[EndpointKey]*Endpoint) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	res.Stats.Lines++

	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		res.Stats.Skipped++
		n.logger.WithError(err).Debug("skipping malformed capture line")
		return
	}
	if strings.TrimSpace(rec.Host) == "" {
		res.Stats.Discarded++
		return
	}
	res.Stats.Records++

	key, extraQuery := identity(&rec)
	ep, ok := index[key]
	if !ok {
		ep = &Endpoint{
			Method:  key.Method,
			BaseURL: key.BaseURL,
			Path:    key.Path,
			Headers: make(map[string]string),
			Query:   make(url.Values),
		}
		index[key] = ep
		res.Endpoints = append(res.Endpoints, ep)
	}

	for k, v := range rec.Query {
		ep.Query[k] = append([]string(nil), v...)
	}
	for k, v := range extraQuery {
		ep.Query[k] = v
	}
	if rec.Body != nil || rec.ReqBody != nil {
		ep.Body = rec.RequestBody()
	}

	for hk, hv := range rec.ReqHeaders {
		ep.Headers[hk] = hv
		ac.Headers[hk] = hv

		switch strings.ToLower(hk) {
		case "cookie":
			for ck, cv := range ParseCookieHeader(hv) {
				ac.Cookies[ck] = cv
			}
			ep.HasAuthCookie = true
		case "authorization":
			ep.HasAuthHeader = true
			if token, ok := BearerToken(hv); ok && !ac.HasToken(token) {
				ac.Tokens = append(ac.Tokens, token)
			}
		}
	}
}

// identity derives the endpoint key. A query string smuggled into the path is
// split off and returned separately.
func identity(rec *Record) (EndpointKey, url.Values) {
	method := strings.ToUpper(strings.TrimSpace(rec.Method))
	if method == "" {
		method = "GET"
	}
	scheme := strings.ToLower(strings.TrimSpace(rec.Scheme))
	if scheme == "" {
		scheme = "http"
	}

	path := rec.Path
	if i := strings.IndexByte(path, '#'); i >= 0 {
		path = path[:i]
	}
	var extra url.Values
	if p, q, ok := strings.Cut(path, "?"); ok {
		path = p
		extra, _ = url.ParseQuery(q)
	}
	if path == "" {
		path = "/"
	}

	return EndpointKey{
		Method:  method,
		BaseURL: scheme + "://" + strings.TrimSpace(rec.Host),
		Path:    path,
	}, extra
}

func emptyResult() *Result {
	return &Result{Contexts: []*AuthContext{NewAuthContext()}}
}

// NormalizeFile is a convenience wrapper around the default normalizer.
func NormalizeFile(path string) (*Result, error) {
	return NewNormalizer(nil).NormalizeFile(path)
}
