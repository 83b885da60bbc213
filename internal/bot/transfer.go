package bot

import (
	"context"
	"strings"

	"github.com/quayhaven/quaydesk/internal/gateway"
	"github.com/quayhaven/quaydesk/internal/ticket"
)

// handleTransfer moves the ticket to the selected access level and
// returns it to the unclaimed pool.
func (b *Bot) handleTransfer(ctx context.Context, ev *gateway.Event) error {
	ticketID := strings.TrimPrefix(ev.Key, ticket.TransferPrefix)
	if len(ev.Values) != 1 {
		return b.platform.Respond(ctx, ev.Ref, gateway.Response{Content: "Invalid selection.", Private: true})
	}
	level := ev.Values[0]

	if err := b.workflow.Transfer(ctx, ticketID, level); err != nil {
		return b.respondError(ctx, ev.Ref, err)
	}
	return b.platform.Respond(ctx, ev.Ref, gateway.Response{
		Content: "Ticket " + ticketID + " transferred to the " + level + " queue.",
		Private: true,
	})
}
