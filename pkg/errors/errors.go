package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTarget        = errors.New("unknown target")
	ErrScanNotFound         = errors.New("scan not found")
	ErrScanExists           = errors.New("scan id already in use")
	ErrScanTerminal         = errors.New("scan already finished")
	ErrInvalidScanID        = errors.New("invalid scan id")
	ErrReportNotAvailable   = errors.New("report not yet available")
	ErrMalformedToken       = errors.New("malformed token")
	ErrUnsupportedAlg       = errors.New("unsupported signing algorithm")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrDiscordNotConfigured = errors.New("discord client not configured")
)

// StrategyError wraps a failure raised inside a single attack strategy run.
type StrategyError struct {
	Strategy string
	Endpoint string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s failed on %s: %v", e.Strategy, e.Endpoint, e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

func NewStrategyError(strategy, endpoint string, err error) *StrategyError {
	return &StrategyError{
		Strategy: strategy,
		Endpoint: endpoint,
		Err:      err,
	}
}

// PersistenceError marks a failed write of scan results. It is the only
// per-scan failure that moves a scan into the error state.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func NewPersistenceError(op, path string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Path: path, Err: err}
}

type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value: %v): %s", e.Field, e.Value, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}
