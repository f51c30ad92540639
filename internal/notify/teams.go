package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Fact is one label/value pair rendered in a Teams card.
type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type messageCard struct {
	Type       string        `json:"@type"`
	Context    string        `json:"@context"`
	ThemeColor string        `json:"themeColor"`
	Summary    string        `json:"summary"`
	Title      string        `json:"title"`
	Text       string        `json:"text,omitempty"`
	Sections   []cardSection `json:"sections,omitempty"`
}

type cardSection struct {
	Facts []Fact `json:"facts,omitempty"`
}

// Teams posts MessageCard payloads to an incoming webhook.
type Teams struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

// NewTeams builds a notifier. An empty URL yields a no-op notifier.
func NewTeams(webhookURL string, logger *slog.Logger) *Teams {
	return &Teams{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Enabled reports whether a webhook is configured.
func (t *Teams) Enabled() bool {
	return t != nil && t.webhookURL != ""
}

// Post sends one card. Green for healthy runs, red for failures.
func (t *Teams) Post(ctx context.Context, title, text string, failed bool, facts []Fact) error {
	if !t.Enabled() {
		t.logger.Info("teams disabled, skipping alert", slog.String("title", title))
		return nil
	}

	color := "2eb886"
	if failed {
		color = "d63333"
	}
	card := messageCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: color,
		Summary:    title,
		Title:      title,
		Text:       text,
	}
	if len(facts) > 0 {
		card.Sections = []cardSection{{Facts: facts}}
	}

	body, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("notify: marshal teams card: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: teams request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post teams card: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: teams webhook returned %d", resp.StatusCode)
	}
	return nil
}
