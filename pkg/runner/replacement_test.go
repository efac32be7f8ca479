package runner

import (
	"context"
	"errors"
	"testing"

	apperrors "authfuzz/pkg/errors"
	"authfuzz/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceInArgs(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		token    string
		value    string
		expected []string
	}{
		{
			name:     "base url as flag value",
			args:     []string{"--url", "{{BASE_URL}}"},
			token:    BaseURLToken,
			value:    "http://lab:3000",
			expected: []string{"--url", "http://lab:3000"},
		},
		{
			name:     "base url inside output file name",
			args:     []string{"-o", "capture_{{BASE_URL}}.jsonl", "--url", "{{BASE_URL}}"},
			token:    BaseURLToken,
			value:    "https://lab.local:8443/app?x=1",
			expected: []string{"-o", "capture_lab.local_8443_app_x_1.jsonl", "--url", "https://lab.local:8443/app?x=1"},
		},
		{
			name:     "url context keeps value verbatim",
			args:     []string{"{{BASE_URL}}/login.php"},
			token:    BaseURLToken,
			value:    "http://dvwa",
			expected: []string{"http://dvwa/login.php"},
		},
		{
			name:     "url in flag value keeps scheme",
			args:     []string{"--login={{BASE_URL}}/rest/user/login", "--capture-log={{BASE_URL}}_login.jsonl"},
			token:    BaseURLToken,
			value:    "http://juice:3000",
			expected: []string{"--login=http://juice:3000/rest/user/login", "--capture-log=juice_3000_login.jsonl"},
		},
		{
			name:     "leading token followed by file suffix is a file name",
			args:     []string{"{{BASE_URL}}_capture.jsonl"},
			token:    BaseURLToken,
			value:    "http://dvwa",
			expected: []string{"dvwa_capture.jsonl"},
		},
		{
			name:     "value that sanitizes to nothing",
			args:     []string{"report_{{PROXY}}.txt"},
			token:    ProxyToken,
			value:    "://://",
			expected: []string{"report_sanitized_value.txt"},
		},
		{
			name:     "untouched arguments",
			args:     []string{"--headless"},
			token:    ProxyToken,
			value:    "http://127.0.0.1:8083",
			expected: []string{"--headless"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, replaceInArgs(tc.args, tc.token, tc.value))
		})
	}
}

func TestCommandRunnerGenerate(t *testing.T) {
	exec := &testutil.MockCommandExecutor{}
	r := NewCommandRunner("scripts/login.py", []string{"--base", "{{BASE_URL}}", "--proxy", "{{PROXY}}"}, "http://127.0.0.1:8083", exec)

	require.NoError(t, r.Generate(context.Background(), "http://juice:3000"))
	require.Len(t, exec.Commands, 1)
	assert.Equal(t, "scripts/login.py", exec.Commands[0].Command)
	assert.Equal(t, []string{"--base", "http://juice:3000", "--proxy", "http://127.0.0.1:8083"}, exec.Commands[0].Args)
}

func TestCommandRunnerPropagatesFailure(t *testing.T) {
	exec := &testutil.MockCommandExecutor{Err: errors.New("exit status 1")}
	r := NewCommandRunner("login.sh", nil, "", exec)

	err := r.Generate(context.Background(), "http://lab")
	assert.ErrorContains(t, err, "login.sh")
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("dvwa", GeneratorFunc(func(context.Context, string) error { return nil }))
	reg.Register("bwapp", GeneratorFunc(func(context.Context, string) error { return nil }))

	assert.Equal(t, []string{"bwapp", "dvwa"}, reg.Targets())

	_, err := reg.Get("dvwa")
	assert.NoError(t, err)

	_, err = reg.Get("webgoat")
	assert.ErrorIs(t, err, apperrors.ErrUnknownTarget)
}
