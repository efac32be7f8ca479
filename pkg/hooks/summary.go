package hooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"authfuzz/pkg/engine"
)

const defaultSummaryDir = "reports"

// SummaryHook writes <dir>/<scan_id>.summary.txt: one section per
// vulnerability kind with its distinct endpoints.
type SummaryHook struct {
	Dir string
}

func (s *SummaryHook) Name() string { return "summary" }

func (s *SummaryHook) Execute(_ context.Context, hc engine.HookContext) error {
	if hc.Report == nil {
		return nil
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create summary dir: %w", err)
	}

	byVuln := make(map[string][]string)
	seen := make(map[string]bool)
	for _, issue := range hc.Report.Issues {
		key := issue.Vulnerability + "\x00" + issue.Endpoint
		if seen[key] {
			continue
		}
		seen[key] = true
		byVuln[issue.Vulnerability] = append(byVuln[issue.Vulnerability], issue.Endpoint)
	}

	kinds := make([]string, 0, len(byVuln))
	for k := range byVuln {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	var b strings.Builder
	fmt.Fprintf(&b, "scan %s  target %s  base %s\n", hc.Report.ScanID, hc.Report.Target, hc.Report.BaseURL)
	fmt.Fprintf(&b, "findings %d  work units %d\n", hc.Report.Total, hc.State.Total)
	for _, k := range kinds {
		fmt.Fprintf(&b, "\n[%s] %d endpoint(s)\n", k, len(byVuln[k]))
		for _, ep := range byVuln[k] {
			fmt.Fprintf(&b, "  %s\n", ep)
		}
	}

	path := filepath.Join(s.Dir, hc.Report.ScanID+".summary.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func init() {
	RegisterHook("summary", func(opts Options) (engine.Hook, error) {
		dir := opts.ReportsDir
		if dir == "" {
			dir = defaultSummaryDir
		}
		return &SummaryHook{Dir: dir}, nil
	})
}
