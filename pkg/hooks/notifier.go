package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"authfuzz/internal/notification"
	"authfuzz/pkg/attacks"
	"authfuzz/pkg/engine"
	"authfuzz/pkg/logger"

	"github.com/sirupsen/logrus"
)

const (
	notifierWorkers = 3
	// Discord rate limits embeds per channel
	notifierThrottle = 250 * time.Millisecond
	maxNotifications = 25
)

// FindingNotifier posts a scan summary and one message per finding.
type FindingNotifier struct {
	sender   notification.Sender
	throttle time.Duration
	logger   *logger.Logger
}

func NewFindingNotifier(sender notification.Sender) *FindingNotifier {
	return &FindingNotifier{
		sender:   sender,
		throttle: notifierThrottle,
		logger:   logger.NewLogger(logrus.InfoLevel),
	}
}

func (n *FindingNotifier) Name() string { return "discord" }

func (n *FindingNotifier) Execute(ctx context.Context, hc engine.HookContext) error {
	if hc.Report == nil {
		return nil
	}

	summary := notification.Message{
		Title:       fmt.Sprintf("Scan %s finished", hc.State.ScanID),
		Description: fmt.Sprintf("%d findings against %s", hc.Report.Total, hc.Report.BaseURL),
		Severity:    "info",
		Fields: map[string]string{
			"target":     hc.Report.Target,
			"work units": fmt.Sprintf("%d", hc.State.Total),
		},
	}
	if err := n.sender.Send(summary); err != nil {
		return fmt.Errorf("send scan summary: %w", err)
	}

	issues := hc.Report.Issues
	if len(issues) > maxNotifications {
		n.logger.WithFields(logger.Fields{
			"scan_id":  hc.State.ScanID,
			"findings": len(issues),
			"sent":     maxNotifications,
		}).Warn("Too many findings, notifying about the first ones only")
		issues = issues[:maxNotifications]
	}

	jobs := make(chan attacks.Result)
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for i := 0; i < notifierWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for issue := range jobs {
				if err := n.sender.Send(findingMessage(hc.State.ScanID, issue)); err != nil {
					n.logger.WithError(err).WithField("vulnerability", issue.Vulnerability).Error("Failed to send finding notification")
					mu.Lock()
					failed++
					mu.Unlock()
				}
				if n.throttle > 0 {
					time.Sleep(n.throttle)
				}
			}
		}()
	}

feed:
	for _, issue := range issues {
		select {
		case jobs <- issue:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d finding notifications failed", failed, len(issues))
	}
	return nil
}

func findingMessage(scanID string, r attacks.Result) notification.Message {
	fields := map[string]string{
		"scan":     scanID,
		"endpoint": r.Endpoint,
	}
	for _, k := range []string{"status_code", "token_prefix", "original_role", "cookie"} {
		if v, ok := r.Evidence[k]; ok {
			fields[k] = fmt.Sprintf("%v", v)
		}
	}
	return notification.Message{
		Title:       r.Vulnerability,
		Description: fmt.Sprintf("%s on %s", r.Vulnerability, r.Endpoint),
		Severity:    string(r.Severity),
		Fields:      fields,
	}
}

func init() {
	RegisterHook("discord", func(Options) (engine.Hook, error) {
		client, err := notification.NewNotificationClient()
		if err != nil {
			return nil, err
		}
		return NewFindingNotifier(client), nil
	})
}
