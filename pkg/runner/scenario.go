package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"authfuzz/pkg/logger"
	"authfuzz/pkg/transport"

	"gopkg.in/yaml.v3"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Scenario is a scripted login flow loaded from YAML. It either lists HTTP
// steps or names an external login Script, never both. A relative Script
// resolves against the scenario file's directory.
type Scenario struct {
	Name   string   `yaml:"name"`
	Steps  []Step   `yaml:"steps"`
	Script string   `yaml:"script"`
	Args   []string `yaml:"args"`
}

// Step is one request of a scenario. Form and JSON are mutually exclusive.
// Extract maps a variable name to a dotted path into the JSON response.
// Header values referencing an unset variable are left out.
type Step struct {
	Method   string                 `yaml:"method"`
	Path     string                 `yaml:"path"`
	Headers  map[string]string      `yaml:"headers"`
	Form     map[string]string      `yaml:"form"`
	JSON     map[string]interface{} `yaml:"json"`
	Extract  map[string]string      `yaml:"extract"`
	Optional bool                   `yaml:"optional"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if s.Script != "" {
		if len(s.Steps) > 0 {
			return nil, fmt.Errorf("scenario %q: script and steps are exclusive", s.Name)
		}
		for _, arg := range s.Args {
			if err := validateArgument(arg); err != nil {
				return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
			}
		}
		return &s, nil
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", s.Name)
	}
	for i, st := range s.Steps {
		if st.Path == "" {
			return nil, fmt.Errorf("scenario %q step %d: path is required", s.Name, i)
		}
		if len(st.Form) > 0 && len(st.JSON) > 0 {
			return nil, fmt.Errorf("scenario %q step %d: form and json are exclusive", s.Name, i)
		}
	}
	return &s, nil
}

// ScenarioRunner replays a Scenario with a fresh cookie session per run.
type ScenarioRunner struct {
	scenario *Scenario
	client   *transport.Client
	logger   *logger.Logger
}

func NewScenarioRunner(s *Scenario, client *transport.Client) *ScenarioRunner {
	return &ScenarioRunner{
		scenario: s,
		client:   client,
		logger:   logger.Default(),
	}
}

func (r *ScenarioRunner) Generate(ctx context.Context, baseURL string) error {
	session, _, err := r.client.WithJar()
	if err != nil {
		return err
	}

	vars := map[string]string{}
	for i, step := range r.scenario.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := buildStepRequest(baseURL, step, vars)
		if err != nil {
			return fmt.Errorf("%s step %d: %w", r.scenario.Name, i, err)
		}

		resp, err := session.Do(ctx, req)
		if err != nil {
			if step.Optional {
				r.logger.WithFields(logger.Fields{
					"scenario": r.scenario.Name,
					"step":     i,
					"url":      req.URL,
				}).WithError(err).Warn("Optional step failed")
				continue
			}
			return fmt.Errorf("%s step %d %s %s: %w", r.scenario.Name, i, req.Method, req.URL, err)
		}

		r.logger.WithFields(logger.Fields{
			"scenario": r.scenario.Name,
			"step":     i,
			"method":   req.Method,
			"url":      req.URL,
			"status":   resp.StatusCode,
		}).Debug("Scenario step sent")

		extract(resp.Body, step.Extract, vars)
	}
	return nil
}

func buildStepRequest(baseURL string, step Step, vars map[string]string) (*transport.Request, error) {
	method := strings.ToUpper(step.Method)
	if method == "" {
		method = http.MethodGet
	}

	target, err := joinURL(baseURL, substitute(step.Path, vars))
	if err != nil {
		return nil, err
	}

	req := &transport.Request{
		Method: method,
		URL:    target,
		Header: http.Header{},
	}

	names := make([]string, 0, len(step.Headers))
	for k := range step.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		v, ok := resolve(step.Headers[k], vars)
		if !ok {
			continue
		}
		req.Header.Set(k, v)
	}

	switch {
	case len(step.Form) > 0:
		form := url.Values{}
		for k, v := range step.Form {
			form.Set(k, substitute(v, vars))
		}
		req.Body = form.Encode()
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	case len(step.JSON) > 0:
		body, err := json.Marshal(substituteJSON(step.JSON, vars))
		if err != nil {
			return nil, fmt.Errorf("encode json body: %w", err)
		}
		req.Body = string(body)
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// joinURL resolves path against base the way a browser would.
func joinURL(base, path string) (string, error) {
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return "", fmt.Errorf("invalid base url %q", base)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid step path %q: %w", path, err)
	}
	return b.ResolveReference(ref).String(), nil
}

func substitute(s string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		return vars[name]
	})
}

// resolve substitutes placeholders and reports whether all of them were set.
func resolve(s string, vars map[string]string) (string, bool) {
	for _, m := range placeholder.FindAllStringSubmatch(s, -1) {
		if _, ok := vars[m[1]]; !ok {
			return "", false
		}
	}
	return substitute(s, vars), true
}

func substituteJSON(v interface{}, vars map[string]string) interface{} {
	switch t := v.(type) {
	case string:
		return substitute(t, vars)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = substituteJSON(val, vars)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = substituteJSON(val, vars)
		}
		return out
	}
	return v
}

// extract copies string or number leaves of a JSON body into vars. Missing
// paths and non-JSON bodies are ignored.
func extract(body []byte, paths map[string]string, vars map[string]string) {
	if len(paths) == 0 {
		return
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return
	}

	for name, path := range paths {
		cur := doc
		for _, part := range strings.Split(path, ".") {
			m, ok := cur.(map[string]interface{})
			if !ok {
				cur = nil
				break
			}
			cur = m[part]
		}
		switch leaf := cur.(type) {
		case string:
			if leaf != "" {
				vars[name] = leaf
			}
		case float64:
			vars[name] = fmt.Sprintf("%v", leaf)
		}
	}
}

// LoadDir registers a generator for every *.yaml file in dir, keyed by the
// file name without extension: a CommandRunner for script scenarios, a
// ScenarioRunner otherwise. proxy is handed to login scripts.
func LoadDir(reg *Registry, dir string, client *transport.Client, proxy string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	var loaded []string
	for _, f := range files {
		s, err := LoadScenario(f)
		if err != nil {
			return loaded, fmt.Errorf("%s: %w", f, err)
		}
		target := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		if s.Script != "" {
			script := s.Script
			if !filepath.IsAbs(script) {
				script = filepath.Join(dir, script)
			}
			reg.Register(target, NewCommandRunner(script, s.Args, proxy, nil))
		} else {
			reg.Register(target, NewScenarioRunner(s, client))
		}
		loaded = append(loaded, target)
	}
	return loaded, nil
}
