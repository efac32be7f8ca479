package attacks

import (
	"context"
	"net/http"

	"authfuzz/pkg/capture"
	"authfuzz/pkg/jwtutil"
	"authfuzz/pkg/logger"
	"authfuzz/pkg/transport"
)

const VulnJWTReplay = "jwt_replay_possible"

// JWTReplay resends the endpoint's request with every captured bearer token.
// A 200 means the token is accepted outside the request it was issued for.
type JWTReplay struct {
	logger *logger.Logger
}

func NewJWTReplay(l *logger.Logger) *JWTReplay {
	return &JWTReplay{logger: orDefault(l)}
}

func (s *JWTReplay) Name() string { return "jwt_replay" }

func (s *JWTReplay) Applicable(ep *capture.Endpoint, ac *capture.AuthContext) bool {
	return len(ac.Tokens) > 0 && ep.HasAuthHeader
}

func (s *JWTReplay) Run(ctx context.Context, ep *capture.Endpoint, ac *capture.AuthContext, doer transport.Doer) ([]Result, error) {
	base := BuildRequest(ep, ac)

	var results []Result
	for _, token := range ac.Tokens {
		if err := ctx.Err(); err != nil {
			return results, nil
		}

		resp, err := doer.Do(ctx, WithBearer(base, token))
		if err != nil {
			s.logger.WithStrategy(s.Name(), ep.Descriptor()).WithError(err).Debug("replay request failed")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			continue
		}

		results = append(results, Result{
			Vulnerability: VulnJWTReplay,
			Endpoint:      ep.Descriptor(),
			Severity:      SeverityHigh,
			Evidence: map[string]interface{}{
				"status_code":     resp.StatusCode,
				"token_prefix":    jwtutil.Prefix(token, TokenPrefixLen),
				"response_sample": sample(resp),
			},
		})
	}
	return results, nil
}
