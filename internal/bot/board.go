package bot

import (
	"context"
	"fmt"

	"github.com/quayhaven/quaydesk/internal/gateway"
)

// handleTicketBoard posts the ticket board (the two creation select
// menus) to the invoking channel and acknowledges privately.
func (b *Bot) handleTicketBoard(ctx context.Context, ev *gateway.Event) error {
	board := gateway.Message{
		Content: "### Need help?\nOpen a ticket and a staff member will get back to you by DM.",
		Rows: []gateway.Row{
			{Select: &gateway.Select{
				CustomID:    createReportSelect,
				Placeholder: "Report a player...",
				Options: []gateway.SelectOption{
					{Label: "In-Game", Description: "Report something that happened in-game", Value: "ingame"},
					{Label: "Discord", Description: "Report something that happened on Discord", Value: "discord"},
				},
			}},
			{Select: &gateway.Select{
				CustomID:    createContactSelect,
				Placeholder: "Contact staff...",
				Options: []gateway.SelectOption{
					{Label: "Mods", Description: "Contact the moderator team", Value: "mods"},
					{Label: "Officers", Description: "Contact the officer team", Value: "officers"},
					{Label: "Admins", Description: "Contact the admin team", Value: "admins"},
					{Label: "Owner", Description: "Contact the server owner", Value: "owner"},
				},
			}},
		},
	}

	if _, err := b.platform.SendMessage(ctx, ev.ChannelID, board); err != nil {
		if rerr := b.platform.Respond(ctx, ev.Ref, gateway.Response{Content: "Could not post the ticket board here.", Private: true}); rerr != nil {
			return fmt.Errorf("bot: respond after board failure: %v (board: %w)", rerr, err)
		}
		return fmt.Errorf("bot: post ticket board: %w", err)
	}
	return b.platform.Respond(ctx, ev.Ref, gateway.Response{Content: "Ticket board posted.", Private: true})
}
