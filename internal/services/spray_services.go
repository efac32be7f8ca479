package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"authfuzz/pkg/logger"
	"authfuzz/pkg/metrics"
	"authfuzz/pkg/payloads"
	"authfuzz/pkg/report"
	"authfuzz/pkg/spray"
	"authfuzz/pkg/transport"

	"github.com/google/uuid"
)

const (
	SprayRunning  = "running"
	SprayFinished = "finished"
	SprayError    = "error"

	defaultJWTSample = 200
)

type SprayRequest struct {
	Mode          string
	BaseURL       string
	LoginPath     string
	Username      string
	CheckPath     string
	Limit         int
	Attempts      int
	SessionCookie string
}

type SprayJob struct {
	ID         string        `json:"id"`
	Mode       string        `json:"mode"`
	BaseURL    string        `json:"base_url"`
	Status     string        `json:"status"`
	Summary    spray.Summary `json:"summary"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

type SprayServiceMethods interface {
	StartSpray(req SprayRequest) (string, error)
	GetSpray(id string) (SprayJob, error)
	Metrics() (report.Metrics, error)
}

// SprayService runs spray jobs. All jobs share one recorder, so the results
// file and the metrics derived from it cover every attempt of the process.
type SprayService struct {
	client    *transport.Client
	recorder  *report.Recorder
	defaults  spray.Config
	roots     payloads.Roots
	collector *metrics.Collector
	logger    *logger.Logger

	mu   sync.Mutex
	jobs map[string]*SprayJob
	wg   sync.WaitGroup
}

func NewSprayService(client *transport.Client, recorder *report.Recorder, defaults spray.Config, roots payloads.Roots, collector *metrics.Collector, l *logger.Logger) *SprayService {
	if l == nil {
		l = logger.Default()
	}
	return &SprayService{
		client:    client,
		recorder:  recorder,
		defaults:  defaults,
		roots:     roots,
		collector: collector,
		logger:    l,
		jobs:      make(map[string]*SprayJob),
	}
}

// Run executes one spray in the foreground.
func (s *SprayService) Run(ctx context.Context, req SprayRequest) (spray.Summary, error) {
	cfg := s.defaults
	if req.BaseURL != "" {
		cfg.BaseURL = req.BaseURL
	}
	if req.LoginPath != "" {
		cfg.LoginPath = req.LoginPath
	}
	if req.Username != "" {
		cfg.Username = req.Username
	}
	if req.CheckPath != "" {
		cfg.CheckPath = req.CheckPath
	}

	sprayer, err := spray.New(cfg, s.client, s.recorder, spray.WithMetrics(s.collector), spray.WithLogger(s.logger))
	if err != nil {
		return spray.Summary{Mode: req.Mode}, err
	}

	switch req.Mode {
	case spray.ModePassword:
		return sprayer.RunPassword(ctx, payloads.Passwords(s.roots, req.Limit))
	case spray.ModeJWT:
		n := req.Limit
		if n < 1 {
			n = defaultJWTSample
		}
		return sprayer.RunJWT(ctx, payloads.Sample(payloads.JWTTokens(s.roots, 0), n, nil))
	case spray.ModeFixation:
		attempts := req.Attempts
		if attempts < 1 {
			attempts = 5
		}
		cookie := req.SessionCookie
		if cookie == "" {
			cookie = "PHPSESSID=fixme"
		}
		return sprayer.RunFixation(ctx, attempts, cookie)
	default:
		return spray.Summary{Mode: req.Mode}, fmt.Errorf("unknown spray mode %q", req.Mode)
	}
}

// StartSpray validates req and runs it in the background.
func (s *SprayService) StartSpray(req SprayRequest) (string, error) {
	switch req.Mode {
	case spray.ModePassword, spray.ModeJWT, spray.ModeFixation:
	default:
		return "", fmt.Errorf("unknown spray mode %q", req.Mode)
	}
	if req.BaseURL == "" && s.defaults.BaseURL == "" {
		return "", errors.New("base url is required")
	}

	job := &SprayJob{
		ID:        uuid.New().String(),
		Mode:      req.Mode,
		BaseURL:   req.BaseURL,
		Status:    SprayRunning,
		StartedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var (
			sum spray.Summary
			err error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic in spray: %v", r)
				}
			}()
			sum, err = s.Run(context.Background(), req)
		}()

		now := time.Now().UTC()
		s.mu.Lock()
		job.Summary = sum
		job.FinishedAt = &now
		job.Status = SprayFinished
		if err != nil {
			job.Status = SprayError
			job.Error = err.Error()
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.WithFields(logger.Fields{"spray_id": job.ID, "mode": req.Mode}).WithError(err).Error("Spray failed")
		}
	}()
	return job.ID, nil
}

func (s *SprayService) GetSpray(id string) (SprayJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return SprayJob{}, fmt.Errorf("spray %s not found", id)
	}
	return *job, nil
}

// Metrics derives success rates from the results file. A missing file
// yields empty metrics.
func (s *SprayService) Metrics() (report.Metrics, error) {
	attempts, err := report.LoadAttempts(s.recorder.Path())
	if err != nil {
		return report.Metrics{}, err
	}
	return report.ComputeMetrics(attempts), nil
}

// Wait blocks until background sprays return.
func (s *SprayService) Wait() {
	s.wg.Wait()
}

// Config returns the defaults each spray starts from.
func (s *SprayService) Config() spray.Config {
	return s.defaults
}
