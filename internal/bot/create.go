package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/quayhaven/quaydesk/internal/gateway"
	"github.com/quayhaven/quaydesk/internal/ticket"
)

// subtypesByCategory are the valid select values per creation category.
var subtypesByCategory = map[string][]string{
	"report":  {"ingame", "discord"},
	"contact": {"mods", "officers", "admins", "owner"},
}

// createHandler returns the select handler for one creation category. It
// presents the subject/body modal, waits for the correlated submission,
// and runs the creation workflow. An expired wait is abandoned silently.
func (b *Bot) createHandler(category string) gateway.HandlerFunc {
	return func(ctx context.Context, ev *gateway.Event) error {
		if len(ev.Values) != 1 || !validSubtype(category, ev.Values[0]) {
			return b.platform.Respond(ctx, ev.Ref, gateway.Response{
				Content: "Invalid selection.", Private: true,
			})
		}
		subtype := ev.Values[0]

		// The interaction ID makes the correlation ID unique per press, so
		// a re-pressed select never collides with an abandoned modal.
		modalID := fmt.Sprintf("%s_submit_%s", subtype, ev.Ref.ID)
		modal := gateway.Modal{
			CustomID: modalID,
			Title:    "Open a ticket",
			Fields: []gateway.ModalField{
				{
					CustomID:  "subject",
					Label:     "Subject",
					Required:  true,
					MinLength: ticket.SubjectMinLen,
					MaxLength: ticket.SubjectMaxLen,
				},
				{
					CustomID:  "body",
					Label:     "What happened?",
					Paragraph: true,
					Required:  true,
					MinLength: ticket.BodyMinLen,
					MaxLength: ticket.BodyMaxLen,
				},
			},
		}
		if err := b.platform.PresentModal(ctx, ev.Ref, modal); err != nil {
			return fmt.Errorf("bot: present creation modal: %w", err)
		}

		sub, err := b.correlator.Wait(ctx, modalID, ev.UserID, 0)
		if errors.Is(err, gateway.ErrWaitExpired) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("bot: await creation modal: %w", err)
		}

		res, err := b.workflow.Create(ctx, ev.UserID, category+"-"+subtype, sub.Fields["subject"], sub.Fields["body"])
		if err != nil {
			return b.respondError(ctx, sub.Ref, err)
		}
		return b.platform.Respond(ctx, sub.Ref, gateway.Response{
			Content: fmt.Sprintf("Ticket %s created. Check your DMs for confirmation.", res.TicketID),
			Private: true,
		})
	}
}

func validSubtype(category, value string) bool {
	for _, s := range subtypesByCategory[category] {
		if s == value {
			return true
		}
	}
	return false
}

// respondError tells the acting user what went wrong. Expected workflow
// outcomes (validation, rate limiting, closed DMs and the like) are the
// user's to fix and are not reported as handler errors; anything else
// propagates for logging after the response is sent.
func (b *Bot) respondError(ctx context.Context, ref gateway.InteractionRef, err error) error {
	if rerr := b.platform.Respond(ctx, ref, gateway.Response{Content: userMessage(err), Private: true}); rerr != nil {
		return fmt.Errorf("bot: respond with error: %v (cause: %w)", rerr, err)
	}
	if expectedError(err) {
		return nil
	}
	return err
}

func expectedError(err error) bool {
	var verr *ticket.ValidationError
	var rlerr *ticket.RateLimitedError
	return errors.As(err, &verr) ||
		errors.As(err, &rlerr) ||
		errors.Is(err, ticket.ErrDMUnavailable) ||
		errors.Is(err, ticket.ErrNotFound) ||
		errors.Is(err, ticket.ErrAlreadyClaimed) ||
		errors.Is(err, ticket.ErrUnclaimed)
}
