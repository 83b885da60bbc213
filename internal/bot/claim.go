package bot

import (
	"context"
	"strings"

	"github.com/quayhaven/quaydesk/internal/gateway"
	"github.com/quayhaven/quaydesk/internal/ticket"
)

// handleClaim runs the claim workflow for the pressing staff member and
// reports which follow-up steps succeeded.
func (b *Bot) handleClaim(ctx context.Context, ev *gateway.Event) error {
	ticketID := strings.TrimPrefix(ev.Key, ticket.ClaimButtonPrefix)

	res, err := b.workflow.Claim(ctx, ticketID, ev.UserID)
	if err != nil {
		return b.respondError(ctx, ev.Ref, err)
	}

	lines := []string{"Ticket " + ticketID + " is yours."}
	if res.ChannelCreated {
		lines = append(lines, "Workspace channel: <#"+res.ChannelID+">")
	} else {
		lines = append(lines, "The workspace channel could not be created.")
	}
	if !res.UserNotified {
		lines = append(lines, "The user could not be notified by DM.")
	}
	return b.platform.Respond(ctx, ev.Ref, gateway.Response{
		Content: strings.Join(lines, "\n"),
		Private: true,
	})
}
