// Package bot registers the Discord-facing feature handlers: the ticket
// board, the creation selects and modals, and the claim, reply, close,
// and transfer controls. It translates gateway events into workflow
// calls and workflow errors into user-facing responses.
package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/quayhaven/quaydesk/internal/gateway"
	"github.com/quayhaven/quaydesk/internal/ticket"
)

// Custom IDs for the ticket board's creation selects.
const (
	createReportSelect  = "ticket_create_report"
	createContactSelect = "ticket_create_contact"
)

// Bot owns the handler registry for one guild.
type Bot struct {
	workflow   *ticket.Workflow
	store      *ticket.Store
	platform   gateway.Platform
	correlator *gateway.Correlator
	registry   *gateway.Registry
}

// Opts holds parameters for creating a Bot.
type Opts struct {
	Workflow   *ticket.Workflow
	Store      *ticket.Store
	Platform   gateway.Platform
	Correlator *gateway.Correlator
}

// New creates a Bot and populates its registry.
func New(opts Opts) (*Bot, error) {
	if opts.Workflow == nil {
		return nil, fmt.Errorf("bot: workflow is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: store is required")
	}
	if opts.Platform == nil {
		return nil, fmt.Errorf("bot: platform is required")
	}
	if opts.Correlator == nil {
		return nil, fmt.Errorf("bot: correlator is required")
	}

	b := &Bot{
		workflow:   opts.Workflow,
		store:      opts.Store,
		platform:   opts.Platform,
		correlator: opts.Correlator,
		registry:   gateway.NewRegistry(),
	}
	if err := b.registerHandlers(); err != nil {
		return nil, err
	}
	return b, nil
}

// Registry returns the populated handler registry for dispatcher wiring.
func (b *Bot) Registry() *gateway.Registry {
	return b.registry
}

func (b *Bot) registerHandlers() error {
	handlers := []gateway.Handler{
		{Kind: gateway.KindCommand, Key: "ticket create", Run: b.handleTicketBoard},
		{Kind: gateway.KindCommand, Key: "reply", Run: b.handleReplyCommand},
		{Kind: gateway.KindAutocomplete, Key: "reply", Run: b.handleReplyAutocomplete},
		{Kind: gateway.KindSelect, Key: createReportSelect, Run: b.createHandler("report")},
		{Kind: gateway.KindSelect, Key: createContactSelect, Run: b.createHandler("contact")},
		{Kind: gateway.KindButton, Key: ticket.ClaimButtonPrefix, Run: b.handleClaim},
		{Kind: gateway.KindButton, Key: ticket.CloseButtonPrefix, Run: b.handleClose},
		{Kind: gateway.KindButton, Key: ticket.ReplyUserButtonPrefix, OwnerOnly: true, Run: b.handleReplyUserButton},
		{Kind: gateway.KindSelect, Key: ticket.ReplyStaffPrefix, Run: b.handleReplyStaffSelect},
		{Kind: gateway.KindSelect, Key: ticket.TransferPrefix, Run: b.handleTransfer},
	}
	for _, h := range handlers {
		if err := b.registry.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// Commands returns the guild slash command set to register on startup.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "ticket",
			Description: "Ticket administration",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "create",
					Description: "Post the ticket board to this channel",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
			},
		},
		{
			Name:        "reply",
			Description: "Reply to one of your open tickets",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:         "ticket",
					Description:  "Ticket ID",
					Type:         discordgo.ApplicationCommandOptionString,
					Required:     true,
					Autocomplete: true,
				},
				{
					Name:        "message",
					Description: "Your reply",
					Type:        discordgo.ApplicationCommandOptionString,
					Required:    true,
				},
			},
		},
	}
}

// userMessage renders a workflow error as a response the acting user can
// act on. Unrecognized errors get a generic line; the detail stays in
// the logs.
func userMessage(err error) string {
	var verr *ticket.ValidationError
	if errors.As(err, &verr) {
		return "Your ticket could not be created:\n- " + strings.Join(verr.Violations, "\n- ")
	}
	var rerr *ticket.RateLimitedError
	if errors.As(err, &rerr) {
		return fmt.Sprintf("You are creating tickets too quickly. Try again in %d seconds.",
			int(rerr.RetryAfter.Seconds())+1)
	}
	switch {
	case errors.Is(err, ticket.ErrDMUnavailable):
		return "I could not send you a direct message. Enable DMs from server members and try again."
	case errors.Is(err, ticket.ErrNotFound):
		return "That ticket does not exist."
	case errors.Is(err, ticket.ErrAlreadyClaimed):
		return "That ticket has already been claimed."
	case errors.Is(err, ticket.ErrUnclaimed):
		return "That ticket has not been claimed yet."
	default:
		return "Something went wrong. Please try again later."
	}
}
