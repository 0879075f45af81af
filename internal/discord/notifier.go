package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/lucasnoah/triagegate/internal/triage"
)

const colorCompleted = 0x3498db

// Notifier posts completion messages. It uses the webhook URL when one is
// configured and falls back to a bot message in the channel.
type Notifier struct {
	client     *Client
	webhookURL string
	channelID  string
}

var _ triage.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier.
func NewNotifier(client *Client, webhookURL, channelID string) *Notifier {
	return &Notifier{client: client, webhookURL: webhookURL, channelID: channelID}
}

// PublishSummary sends the completion summary for issue.
func (n *Notifier) PublishSummary(ctx context.Context, issue int, summary string) error {
	msg := Message{Embeds: []Embed{{
		Title:       "Triage Action Completed",
		Description: summary,
		Color:       colorCompleted,
		Footer:      &EmbedFooter{Text: fmt.Sprintf("Audit Trail • triage-%d", issue)},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}}}

	if n.webhookURL != "" {
		return n.client.ExecuteWebhook(ctx, n.webhookURL, msg)
	}
	if n.channelID == "" {
		return fmt.Errorf("no discord webhook URL or channel configured")
	}
	_, err := n.client.CreateMessage(ctx, n.channelID, msg)
	return err
}
