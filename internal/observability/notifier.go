package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Notifier delivers alerts outside the terminal.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

// WebhookOption customizes a Slack webhook notifier.
type WebhookOption func(*slackNotifier)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(n *slackNotifier) { n.client = c }
}

type slackNotifier struct {
	url    string
	client *http.Client
}

// NewSlackNotifier posts alerts to a Slack incoming webhook. One request is
// sent per Notify call; alerts for several plans share the message.
func NewSlackNotifier(webhookURL string, opts ...WebhookOption) Notifier {
	n := &slackNotifier{
		url:    webhookURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// slackPayload is the subset of the Block Kit message format plansync sends.
// Text is the plain fallback shown in push notifications.
type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (n *slackNotifier) Notify(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(buildSlackMessage(alerts))
	if err != nil {
		return fmt.Errorf("encoding slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		if msg := strings.TrimSpace(string(snippet)); msg != "" {
			return fmt.Errorf("slack webhook returned status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// buildSlackMessage renders one section per plan, most severe alerts first.
func buildSlackMessage(alerts []Alert) slackPayload {
	byPlan := make(map[string][]Alert)
	var plans []string
	for _, a := range alerts {
		if _, ok := byPlan[a.Plan]; !ok {
			plans = append(plans, a.Plan)
		}
		byPlan[a.Plan] = append(byPlan[a.Plan], a)
	}
	sort.Strings(plans)

	title := "plansync alerts"
	if len(plans) == 1 && plans[0] != "" {
		title += ": " + plans[0]
	}

	payload := slackPayload{
		Text:   fmt.Sprintf("%s (%d)", title, len(alerts)),
		Blocks: []slackBlock{{Type: "header", Text: &slackText{Type: "plain_text", Text: title}}},
	}

	for pi, plan := range plans {
		group := byPlan[plan]
		sort.SliceStable(group, func(i, j int) bool {
			return severityRank(group[i].Severity) < severityRank(group[j].Severity)
		})
		if len(plans) > 1 {
			name := plan
			if name == "" {
				name = "(no plan)"
			}
			payload.Blocks = append(payload.Blocks, slackBlock{
				Type:     "context",
				Elements: []slackText{{Type: "mrkdwn", Text: "*plan* `" + name + "`"}},
			})
		}
		for i, a := range group {
			if i > 0 || pi > 0 {
				payload.Blocks = append(payload.Blocks, slackBlock{Type: "divider"})
			}
			payload.Blocks = append(payload.Blocks, slackBlock{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: alertLine(a)},
			})
		}
	}
	return payload
}

func alertLine(a Alert) string {
	line := fmt.Sprintf("%s *[%s]* %s", severityEmoji(a.Severity), strings.ToUpper(string(a.Severity)), a.Message)
	if a.TaskID != "" {
		line += fmt.Sprintf(" (`%s`)", a.TaskID)
	}
	return line + "\n_" + a.TriggeredAt.UTC().Format("2006-01-02 15:04 UTC") + "_"
}

func severityRank(s AlertSeverity) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 2
	}
	return 3
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	}
	return "❓"
}
