// Package mirror posts ticket lifecycle events to a Slack channel so
// staff leads can watch queue activity without being in Discord. The
// mirror is strictly observational: it swallows every failure and never
// blocks a ticket transition.
package mirror

import (
	"context"
	"fmt"
	"log"

	"github.com/quayhaven/quaydesk/internal/models"
	"github.com/quayhaven/quaydesk/internal/ticket"
	slackapi "github.com/slack-go/slack"
)

// Attachment colors per lifecycle event.
const (
	colorOpened      = "#36a64f"
	colorClaimed     = "#2e86de"
	colorTransferred = "#f39c12"
	colorClosed      = "#95a5a6"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack mirrors ticket lifecycle events into one Slack channel.
type Slack struct {
	client    slackClient
	channelID string
}

// SlackOpts holds parameters for creating a Slack mirror.
type SlackOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // channel to post lifecycle events to
	// For testing: inject a mock client instead of real Slack API.
	Client slackClient
}

// NewSlack creates a Slack mirror.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("mirror: slack bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("mirror: slack channel is required")
	}

	s := &Slack{channelID: opts.ChannelID}
	if opts.Client != nil {
		s.client = opts.Client
	} else {
		s.client = slackapi.New(opts.BotToken)
	}
	return s, nil
}

// TicketOpened posts the new-ticket event.
func (s *Slack) TicketOpened(ctx context.Context, t *models.Ticket) {
	s.post(ctx, slackapi.Attachment{
		Color: colorOpened,
		Title: fmt.Sprintf("Ticket %s opened", t.TicketID),
		Fields: append(ticketFields(t), slackapi.AttachmentField{
			Title: "Subject", Value: t.Subject,
		}),
	})
}

// TicketClaimed posts the claim event.
func (s *Slack) TicketClaimed(ctx context.Context, t *models.Ticket, staffID string) {
	s.post(ctx, slackapi.Attachment{
		Color: colorClaimed,
		Title: fmt.Sprintf("Ticket %s claimed", t.TicketID),
		Fields: append(ticketFields(t), slackapi.AttachmentField{
			Title: "Claimed by", Value: staffID, Short: true,
		}),
	})
}

// TicketTransferred posts the transfer event.
func (s *Slack) TicketTransferred(ctx context.Context, t *models.Ticket, accessLevel string) {
	s.post(ctx, slackapi.Attachment{
		Color: colorTransferred,
		Title: fmt.Sprintf("Ticket %s transferred", t.TicketID),
		Fields: append(ticketFields(t), slackapi.AttachmentField{
			Title: "New access level", Value: accessLevel, Short: true,
		}),
	})
}

// TicketClosed posts the close event.
func (s *Slack) TicketClosed(ctx context.Context, t *models.Ticket) {
	s.post(ctx, slackapi.Attachment{
		Color:  colorClosed,
		Title:  fmt.Sprintf("Ticket %s closed", t.TicketID),
		Fields: ticketFields(t),
	})
}

func (s *Slack) post(_ context.Context, att slackapi.Attachment) {
	if _, _, err := s.client.PostMessage(s.channelID, slackapi.MsgOptionAttachments(att)); err != nil {
		log.Printf("mirror: post to slack: %v", err)
	}
}

func ticketFields(t *models.Ticket) []slackapi.AttachmentField {
	return []slackapi.AttachmentField{
		{Title: "Type", Value: t.TicketType, Short: true},
		{Title: "Access level", Value: t.AccessLevel, Short: true},
	}
}

var _ ticket.Mirror = (*Slack)(nil)
