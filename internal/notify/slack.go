// Package notify posts an optional run-summary message to Slack when a
// pipeline run's severity meets a configured threshold.
package notify

import (
	"context"
	"fmt"

	"github.com/jordigilh/rtx/internal/policy"
	"github.com/jordigilh/rtx/internal/report"
	"github.com/slack-go/slack"
)

// SlackNotifier posts run summaries to a single incoming webhook.
type SlackNotifier struct {
	webhookURL  string
	minSeverity policy.Severity
}

// NewSlackNotifier builds a notifier that only fires for runs whose
// highest verdict severity is at least minSeverity.
func NewSlackNotifier(webhookURL string, minSeverity policy.Severity) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL, minSeverity: minSeverity}
}

// Notify posts a summary of r if r's worst severity meets the threshold
// and a webhook URL is configured. It is a no-op otherwise.
func (n *SlackNotifier) Notify(ctx context.Context, r report.Report) error {
	if n.webhookURL == "" {
		return nil
	}
	if !n.meetsThreshold(r) {
		return nil
	}

	msg := slack.WebhookMessage{
		Text: summaryText(r),
	}
	return slack.PostWebhookContext(ctx, n.webhookURL, &msg)
}

func (n *SlackNotifier) meetsThreshold(r report.Report) bool {
	worst := policy.SeveritySafe
	for _, v := range r.Verdicts {
		s := policy.ParseSeverity(v.Severity)
		if s > worst {
			worst = s
		}
	}
	return worst >= n.minSeverity
}

func summaryText(r report.Report) string {
	s := r.Summary
	return fmt.Sprintf(
		"rtx run %s: %d dependencies evaluated - %d critical, %d high, %d medium, %d low, %d safe (exit %d)",
		r.RunID, s.Total, s.Critical, s.High, s.Medium, s.Low, s.Safe, r.ExitCode,
	)
}
