package attacks

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"authfuzz/pkg/capture"
	"authfuzz/pkg/logger"
	"authfuzz/pkg/transport"
)

const VulnSessionFixation = "session_fixation_candidate"

// SessionKeyPatterns are matched case-insensitively as substrings of cookie names.
var SessionKeyPatterns = []string{"phpsessid", "jsessionid", "sessionid", "sid"}

// IsSessionCookie reports whether name looks like a session identifier.
func IsSessionCookie(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range SessionKeyPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// SessionCookieNames returns the session-like cookie names in sorted order.
func SessionCookieNames(cookies map[string]string) []string {
	var names []string
	for k := range cookies {
		if IsSessionCookie(k) {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// SessionFixation replays the endpoint with the captured cookie jar and no
// bearer token. Acceptance shows a pre-set session id is honored; it does
// not prove fixation is exploitable end to end.
type SessionFixation struct {
	logger *logger.Logger
}

func NewSessionFixation(l *logger.Logger) *SessionFixation {
	return &SessionFixation{logger: orDefault(l)}
}

func (s *SessionFixation) Name() string { return "session_fixation" }

func (s *SessionFixation) Applicable(_ *capture.Endpoint, ac *capture.AuthContext) bool {
	for k := range ac.Cookies {
		if IsSessionCookie(k) {
			return true
		}
	}
	return false
}

func (s *SessionFixation) Run(ctx context.Context, ep *capture.Endpoint, ac *capture.AuthContext, doer transport.Doer) ([]Result, error) {
	names := SessionCookieNames(ac.Cookies)
	if len(names) == 0 {
		return nil, nil
	}

	resp, err := doer.Do(ctx, WithCookies(BuildRequest(ep, ac), ac.Cookies))
	if err != nil {
		s.logger.WithStrategy(s.Name(), ep.Descriptor()).WithError(err).Debug("fixation probe failed")
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	return []Result{{
		Vulnerability: VulnSessionFixation,
		Endpoint:      ep.Descriptor(),
		Severity:      SeverityMedium,
		Evidence: map[string]interface{}{
			"session_cookies": names,
			"status_code":     resp.StatusCode,
			"response_sample": sample(resp),
		},
	}}, nil
}
