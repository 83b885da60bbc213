package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quayhaven/quaydesk/internal/gateway"
	"github.com/quayhaven/quaydesk/internal/ticket"
)

// maxAutocompleteChoices is Discord's cap on autocomplete suggestions.
const maxAutocompleteChoices = 25

// handleReplyStaffSelect handles the reply select in a workspace channel:
// the chosen value decides whether the forwarded DM carries a close
// prompt. The reply text is collected through a modal.
func (b *Bot) handleReplyStaffSelect(ctx context.Context, ev *gateway.Event) error {
	ticketID := strings.TrimPrefix(ev.Key, ticket.ReplyStaffPrefix)
	if len(ev.Values) != 1 {
		return b.platform.Respond(ctx, ev.Ref, gateway.Response{Content: "Invalid selection.", Private: true})
	}
	closePrompt := ev.Values[0] == "yes_prompt"

	sub, err := b.collectReplyText(ctx, ev)
	if sub == nil || err != nil {
		return err
	}

	if err := b.workflow.ReplyStaff(ctx, ticketID, sub.Fields["message"], closePrompt); err != nil {
		return b.respondError(ctx, sub.Ref, err)
	}
	return b.platform.Respond(ctx, sub.Ref, gateway.Response{
		Content: "Reply sent to the user.",
		Private: true,
	})
}

// handleReplyUserButton handles the reply button under a staff reply in
// the user's DM. Registered owner-only; the dispatcher has already
// rejected anyone the message does not belong to.
func (b *Bot) handleReplyUserButton(ctx context.Context, ev *gateway.Event) error {
	ticketID := strings.TrimPrefix(ev.Key, ticket.ReplyUserButtonPrefix)

	sub, err := b.collectReplyText(ctx, ev)
	if sub == nil || err != nil {
		return err
	}

	if err := b.workflow.ReplyUser(ctx, ticketID, sub.Fields["message"]); err != nil {
		return b.respondError(ctx, sub.Ref, err)
	}
	return b.platform.Respond(ctx, sub.Ref, gateway.Response{
		Content: "Reply sent to the staff member handling your ticket.",
		Private: true,
	})
}

// collectReplyText presents the reply modal and waits for its
// submission. A nil event with nil error means the wait expired and the
// interaction is abandoned.
func (b *Bot) collectReplyText(ctx context.Context, ev *gateway.Event) (*gateway.Event, error) {
	modalID := fmt.Sprintf("reply_submit_%s", ev.Ref.ID)
	modal := gateway.Modal{
		CustomID: modalID,
		Title:    "Reply",
		Fields: []gateway.ModalField{{
			CustomID:  "message",
			Label:     "Message",
			Paragraph: true,
			Required:  true,
			MaxLength: ticket.BodyMaxLen,
		}},
	}
	if err := b.platform.PresentModal(ctx, ev.Ref, modal); err != nil {
		return nil, fmt.Errorf("bot: present reply modal: %w", err)
	}

	sub, err := b.correlator.Wait(ctx, modalID, ev.UserID, 0)
	if errors.Is(err, gateway.ErrWaitExpired) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bot: await reply modal: %w", err)
	}
	return sub, nil
}

// handleReplyCommand is the user-side /reply command: reply to one of
// your own tickets by ID without waiting for a DM button.
func (b *Bot) handleReplyCommand(ctx context.Context, ev *gateway.Event) error {
	ticketID := strings.TrimSpace(ev.Fields["ticket"])
	message := strings.TrimSpace(ev.Fields["message"])
	if ticketID == "" || message == "" {
		return b.platform.Respond(ctx, ev.Ref, gateway.Response{
			Content: "Both a ticket ID and a message are required.",
			Private: true,
		})
	}

	t, err := b.store.Ticket(ctx, ticketID)
	if err != nil {
		return b.respondError(ctx, ev.Ref, err)
	}
	if t.UserID != ev.UserID {
		return b.platform.Respond(ctx, ev.Ref, gateway.Response{
			Content: "That ticket is not yours.",
			Private: true,
		})
	}

	if err := b.workflow.ReplyUser(ctx, ticketID, message); err != nil {
		return b.respondError(ctx, ev.Ref, err)
	}
	return b.platform.Respond(ctx, ev.Ref, gateway.Response{
		Content: "Reply added to ticket " + ticketID + ".",
		Private: true,
	})
}

// handleReplyAutocomplete proposes the invoking user's own ticket IDs,
// narrowed by whatever they have typed so far.
func (b *Bot) handleReplyAutocomplete(ctx context.Context, ev *gateway.Event) error {
	typed := strings.ToUpper(strings.TrimSpace(ev.Fields["ticket"]))

	tickets, err := b.store.TicketsByUser(ctx, ev.UserID, maxAutocompleteChoices)
	if err != nil {
		// Suggestions are optional; an empty list is a valid answer.
		return b.platform.RespondChoices(ctx, ev.Ref, nil)
	}

	var choices []gateway.Choice
	for _, t := range tickets {
		if typed != "" && !strings.HasPrefix(t.TicketID, typed) {
			continue
		}
		choices = append(choices, gateway.Choice{
			Name:  t.TicketID + ": " + t.Subject,
			Value: t.TicketID,
		})
	}
	return b.platform.RespondChoices(ctx, ev.Ref, choices)
}
