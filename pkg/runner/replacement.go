package runner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"authfuzz/pkg/logger"
)

const (
	BaseURLToken = "{{BASE_URL}}"
	ProxyToken   = "{{PROXY}}"
)

var (
	protocolPrefix      = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
	invalidFilenameChar = regexp.MustCompile(`[<>:"/\\|?*=&#]`)
	repeatedUnderscore  = regexp.MustCompile(`_+`)
)

// CommandRunner is a Generator backed by an external login script. The
// script's arguments may reference {{BASE_URL}} and {{PROXY}}; HTTP_PROXY and
// HTTPS_PROXY are also exported so scripts that honor them need no flags.
type CommandRunner struct {
	Script string
	Args   []string
	Proxy  string

	exec   Executor
	logger *logger.Logger
}

func NewCommandRunner(script string, args []string, proxy string, exec Executor) *CommandRunner {
	if exec == nil {
		exec = NewScriptExecutor(
			"HTTP_PROXY="+proxy,
			"HTTPS_PROXY="+proxy,
			"AUTHFUZZ_PROXY="+proxy,
		)
	}
	return &CommandRunner{
		Script: script,
		Args:   args,
		Proxy:  proxy,
		exec:   exec,
		logger: logger.Default(),
	}
}

func (r *CommandRunner) Generate(ctx context.Context, baseURL string) error {
	args := replaceInArgs(r.Args, BaseURLToken, baseURL)
	args = replaceInArgs(args, ProxyToken, r.Proxy)

	r.logger.WithFields(logger.Fields{
		"script":   r.Script,
		"base_url": baseURL,
	}).Info("Generating traffic with login script")

	if err := r.exec.Run(ctx, r.Script, args); err != nil {
		return fmt.Errorf("login script %s: %w", r.Script, err)
	}
	return nil
}

// replaceInArgs substitutes token in every argument. Arguments that look like
// file names get a filesystem-safe rendition of value instead.
func replaceInArgs(args []string, token, value string) []string {
	replaced := make([]string, len(args))
	for i, arg := range args {
		if isLikelyFilePath(arg, token) {
			replaced[i] = strings.ReplaceAll(arg, token, sanitizeForFilename(value))
			continue
		}
		replaced[i] = strings.ReplaceAll(arg, token, value)
	}
	return replaced
}

func isLikelyFilePath(arg, token string) bool {
	if !strings.Contains(arg, token) || isURLPosition(arg, token) {
		return false
	}
	lower := strings.ToLower(arg)
	if strings.Contains(lower, "://") {
		return false
	}

	for _, ext := range []string{".txt", ".json", ".jsonl", ".log", ".out", ".har"} {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	for _, word := range []string{"output", "result", "capture", "report", "log", "file"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// isURLPosition reports whether token opens the argument, or the value of a
// --flag=value argument, and is followed by nothing but a path or query.
func isURLPosition(arg, token string) bool {
	rest := arg
	if strings.HasPrefix(arg, "-") {
		if _, v, ok := strings.Cut(arg, "="); ok {
			rest = v
		}
	}
	after, ok := strings.CutPrefix(rest, token)
	if !ok {
		return false
	}
	return after == "" || strings.ContainsRune("/?#", rune(after[0]))
}

func sanitizeForFilename(value string) string {
	s := protocolPrefix.ReplaceAllString(value, "")
	s = invalidFilenameChar.ReplaceAllString(s, "_")
	s = repeatedUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_.")
	if s == "" {
		return "sanitized_value"
	}
	if len(s) > 100 {
		s = strings.TrimRight(s[:100], "_.")
	}
	return s
}
