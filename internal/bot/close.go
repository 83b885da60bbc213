package bot

import (
	"context"
	"strings"

	"github.com/quayhaven/quaydesk/internal/gateway"
	"github.com/quayhaven/quaydesk/internal/ticket"
)

// handleClose tears down the ticket's artifacts. Both the staff close
// button in the workspace channel and the close prompt in the user's DM
// land here; the workflow does not care who asked.
func (b *Bot) handleClose(ctx context.Context, ev *gateway.Event) error {
	ticketID := strings.TrimPrefix(ev.Key, ticket.CloseButtonPrefix)

	if err := b.workflow.Close(ctx, ticketID); err != nil {
		return b.respondError(ctx, ev.Ref, err)
	}
	return b.platform.Respond(ctx, ev.Ref, gateway.Response{
		Content: "Ticket " + ticketID + " closed.",
		Private: true,
	})
}
