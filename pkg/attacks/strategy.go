// Package attacks defines the attack strategy contract and the built-in
// strategies run by the scan engine.
package attacks

import (
	"context"
	"fmt"
	"strings"

	"authfuzz/pkg/capture"
	"authfuzz/pkg/logger"
	"authfuzz/pkg/transport"
)

// SampleLimit bounds response samples kept as evidence.
const SampleLimit = 512

// TokenPrefixLen is how much of a bearer token ends up in a report.
const TokenPrefixLen = 16

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Result is a positive detection. Strategies only create one when the
// target accepted the mutated request.
type Result struct {
	Vulnerability string                 `json:"vulnerability"`
	Endpoint      string                 `json:"endpoint"`
	Severity      Severity               `json:"severity"`
	Evidence      map[string]interface{} `json:"evidence"`
}

// Strategy is a pluggable attack. Applicable must be cheap and free of side
// effects. Run absorbs transport failures and returns whatever it found;
// an error means the strategy itself broke.
type Strategy interface {
	Name() string
	Applicable(ep *capture.Endpoint, ac *capture.AuthContext) bool
	Run(ctx context.Context, ep *capture.Endpoint, ac *capture.AuthContext, doer transport.Doer) ([]Result, error)
}

// Catalog is the ordered list of strategies a scan runs.
type Catalog []Strategy

// DefaultCatalog returns every built-in strategy.
func DefaultCatalog() Catalog {
	return Catalog{
		NewJWTRoleEscalation(nil),
		NewJWTReplay(nil),
		NewSessionFixation(nil),
	}
}

func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for _, s := range c {
		names = append(names, s.Name())
	}
	return names
}

// Select keeps the named strategies, in catalog order. No names means all.
func (c Catalog) Select(names ...string) (Catalog, error) {
	if len(names) == 0 {
		return c, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}

	var out Catalog
	for _, s := range c {
		if want[s.Name()] {
			out = append(out, s)
			delete(want, s.Name())
		}
	}
	for n := range want {
		return nil, fmt.Errorf("unknown strategy %q (available: %s)", n, strings.Join(c.Names(), ", "))
	}
	return out, nil
}

// sample truncates the body to SampleLimit characters.
func sample(resp *transport.Response) string {
	s := string(resp.Body)
	n := 0
	for i := range s {
		if n == SampleLimit {
			return s[:i]
		}
		n++
	}
	return s
}

func orDefault(l *logger.Logger) *logger.Logger {
	if l == nil {
		return logger.Default()
	}
	return l
}
