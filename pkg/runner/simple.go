package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"authfuzz/pkg/logger"

	"github.com/sirupsen/logrus"
)

var safeScriptPath = regexp.MustCompile(`^[a-zA-Z0-9_\-./]+$`)

// Executor runs one external command to completion.
type Executor interface {
	Run(ctx context.Context, command string, args []string) error
}

// ScriptExecutor runs login scripts with their interpreter. Only script files
// are accepted; bare binaries on PATH are refused.
type ScriptExecutor struct {
	// Env is appended to the current environment of every script.
	Env    []string
	logger *logger.Logger
}

func NewScriptExecutor(env ...string) *ScriptExecutor {
	return &ScriptExecutor{
		Env:    env,
		logger: logger.NewLogger(logrus.InfoLevel),
	}
}

func (r *ScriptExecutor) Run(ctx context.Context, script string, args []string) error {
	if err := validateScript(script); err != nil {
		return fmt.Errorf("invalid script: %w", err)
	}
	for i, arg := range args {
		if err := validateArgument(arg); err != nil {
			return fmt.Errorf("invalid argument at index %d (%s): %w", i, arg, err)
		}
	}

	interpreter, finalArgs, err := resolveInterpreter(script, args)
	if err != nil {
		return err
	}

	r.logger.WithFields(logger.Fields{
		"interpreter": interpreter,
		"args":        finalArgs,
	}).Info("Running login script")

	cmd := exec.CommandContext(ctx, interpreter, finalArgs...)
	cmd.Env = append(os.Environ(), r.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stdout.Len() > 0 {
			r.logger.WithFields(logger.Fields{"stdout": stdout.String()}).Info("Script stdout output")
		}
		msg := fmt.Sprintf("script failed: %v", err)
		if stderr.Len() > 0 {
			msg = fmt.Sprintf("%s\nstderr: %s", msg, strings.TrimSpace(stderr.String()))
		}
		r.logger.WithError(err).Error("Login script failed")
		return fmt.Errorf("%s", msg)
	}

	if stdout.Len() > 0 {
		r.logger.WithFields(logger.Fields{"stdout": stdout.String()}).Debug("Script stdout output")
	}
	return nil
}

func validateScript(script string) error {
	if script == "" {
		return fmt.Errorf("script is empty")
	}
	if filepath.Ext(script) == "" {
		return fmt.Errorf("not a script file: %s", script)
	}
	if !safeScriptPath.MatchString(script) {
		return fmt.Errorf("unsafe characters in script path: %s", script)
	}

	fi, err := os.Lstat(script)
	if err != nil {
		return fmt.Errorf("script does not exist: %w", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("script is a symlink: %s", script)
	}
	if fi.IsDir() {
		return fmt.Errorf("script is a directory: %s", script)
	}
	return nil
}

func validateArgument(arg string) error {
	if arg == "" {
		return nil
	}

	for _, char := range []string{";", "&", "|", "`", "$", "(", ")", "\n", "\r", "<", ">"} {
		if strings.Contains(arg, char) {
			return fmt.Errorf("argument contains dangerous character: %s", char)
		}
	}

	// .. is fine inside URLs, not in paths
	if strings.Contains(arg, "..") && !strings.Contains(arg, "://") {
		return fmt.Errorf("path traversal detected in argument")
	}
	return nil
}

func resolveInterpreter(script string, args []string) (string, []string, error) {
	withScript := append([]string{script}, args...)
	switch filepath.Ext(script) {
	case ".py":
		return "python3", withScript, nil
	case ".js":
		return "node", withScript, nil
	case ".rb":
		return "ruby", withScript, nil
	case ".sh":
		return "sh", withScript, nil
	case ".ps1":
		return "powershell", append([]string{"-File", script}, args...), nil
	}
	return "", nil, fmt.Errorf("no interpreter for %s", script)
}
