// Package capture turns an intercepting proxy's JSONL capture log into a
// deduplicated endpoint and credential model.
package capture

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Record is one line of the capture log. Both the request and response
// stage of a flow are logged; they normalize to the same endpoint.
type Record struct {
	T           float64           `json:"t,omitempty"`
	Stage       string            `json:"stage,omitempty"`
	Scheme      string            `json:"scheme,omitempty"`
	Method      string            `json:"method,omitempty"`
	Host        string            `json:"host"`
	Path        string            `json:"path"`
	Query       Query             `json:"query,omitempty"`
	ReqHeaders  map[string]string `json:"req_headers,omitempty"`
	Body        *string           `json:"body,omitempty"`
	ReqBody     *string           `json:"req_body,omitempty"`
	Status      int               `json:"status,omitempty"`
	RespHeaders map[string]string `json:"resp_headers,omitempty"`
	RespBody    string            `json:"resp_body,omitempty"`
}

// RequestBody returns the observed request body, preferring "body".
func (r *Record) RequestBody() string {
	if r.Body != nil {
		return *r.Body
	}
	if r.ReqBody != nil {
		return *r.ReqBody
	}
	return ""
}

// Query accepts the shapes proxies emit for query parameters: an object of
// string lists, an object of scalars, or a raw query string.
type Query url.Values

func (q *Query) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*q = nil
		return nil
	}

	var raw string
	if err := json.Unmarshal(b, &raw); err == nil {
		vals, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
		if err != nil {
			return fmt.Errorf("query string: %w", err)
		}
		*q = Query(vals)
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("query: %w", err)
	}

	out := make(Query, len(obj))
	for k, v := range obj {
		var list []interface{}
		if err := json.Unmarshal(v, &list); err == nil {
			for _, item := range list {
				out[k] = append(out[k], scalar(item))
			}
			continue
		}
		var single interface{}
		if err := json.Unmarshal(v, &single); err != nil {
			return fmt.Errorf("query value %q: %w", k, err)
		}
		out[k] = append(out[k], scalar(single))
	}
	*q = out
	return nil
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
