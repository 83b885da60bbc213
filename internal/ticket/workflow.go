package ticket

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/quayhaven/quaydesk/internal/config"
	"github.com/quayhaven/quaydesk/internal/gateway"
	"github.com/quayhaven/quaydesk/internal/models"
)

// Subject/body bounds enforced at creation.
const (
	SubjectMinLen = 2
	SubjectMaxLen = 90
	BodyMinLen    = 10
	BodyMaxLen    = 1000
)

// Custom-ID prefixes for the interactive components the workflow emits.
// Handlers register against the same prefixes.
const (
	ClaimButtonPrefix     = "ticket_claim_"
	CloseButtonPrefix     = "ticket_close_"
	ReplyUserButtonPrefix = "ticket_reply_user_"
	ReplyStaffPrefix      = "ticket_reply_staff_"
	TransferPrefix        = "ticket_transfer_"
)

// AccessLevels are the queues a ticket can be transferred to.
var AccessLevels = []string{"mod", "officer", "admin", "owner"}

// Mirror receives ticket lifecycle events for out-of-band observation
// (e.g. a Slack channel staff leads watch). Implementations must never
// block meaningfully and must swallow their own failures.
type Mirror interface {
	TicketOpened(ctx context.Context, t *models.Ticket)
	TicketClaimed(ctx context.Context, t *models.Ticket, staffID string)
	TicketTransferred(ctx context.Context, t *models.Ticket, accessLevel string)
	TicketClosed(ctx context.Context, t *models.Ticket)
}

// Workflow drives ticket state transitions. Store writes are individually
// atomic, but a multi-step transition is not serialized against concurrent
// transitions on the same ticket: a transfer racing a reply can
// interleave. That is the accepted consistency level.
type Workflow struct {
	store     *Store
	limiter   *RateLimiter
	messenger gateway.Messenger
	tickets   config.TicketsConfig
	mirror    Mirror // optional
}

// WorkflowOpts holds parameters for creating a Workflow.
type WorkflowOpts struct {
	Store     *Store
	Limiter   *RateLimiter
	Messenger gateway.Messenger
	Tickets   config.TicketsConfig
	Mirror    Mirror // optional
}

// NewWorkflow creates a Workflow.
func NewWorkflow(opts WorkflowOpts) (*Workflow, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("ticket: workflow: store is required")
	}
	if opts.Limiter == nil {
		return nil, fmt.Errorf("ticket: workflow: rate limiter is required")
	}
	if opts.Messenger == nil {
		return nil, fmt.Errorf("ticket: workflow: messenger is required")
	}
	if len(opts.Tickets.Routing) == 0 {
		return nil, fmt.Errorf("ticket: workflow: routing table is required")
	}
	return &Workflow{
		store:     opts.Store,
		limiter:   opts.Limiter,
		messenger: opts.Messenger,
		tickets:   opts.Tickets,
		mirror:    opts.Mirror,
	}, nil
}

// Validate checks subject and body against the creation bounds and
// returns every violated rule, or nil when both are in bounds.
func Validate(subject, body string) *ValidationError {
	var violations []string
	if len(subject) < SubjectMinLen {
		violations = append(violations, fmt.Sprintf("subject must be at least %d characters", SubjectMinLen))
	}
	if len(subject) > SubjectMaxLen {
		violations = append(violations, fmt.Sprintf("subject must be at most %d characters", SubjectMaxLen))
	}
	if len(body) < BodyMinLen {
		violations = append(violations, fmt.Sprintf("body must be at least %d characters", BodyMinLen))
	}
	if len(body) > BodyMaxLen {
		violations = append(violations, fmt.Sprintf("body must be at most %d characters", BodyMaxLen))
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// CreateResult reports a successful creation.
type CreateResult struct {
	TicketID string
}

// Create validates, rate-limits, probes the user's DMs, persists the
// ticket, and announces it to the routed staff channel. Failures before
// the insert leave no trace (and refund the rate-limit reservation);
// failures after the insert are soft: logged, the ticket survives, and it
// may just lack a linked notification message.
func (w *Workflow) Create(ctx context.Context, userID, ticketType, subject, body string) (*CreateResult, error) {
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)
	if verr := Validate(subject, body); verr != nil {
		return nil, verr
	}

	subtype := subtypeOf(ticketType)
	notifyChannel, ok := w.tickets.Routing[subtype]
	if !ok {
		return nil, fmt.Errorf("ticket: no notification channel routed for subtype %q", subtype)
	}

	if retryAfter, ok := w.limiter.Reserve(userID); !ok {
		return nil, &RateLimitedError{RetryAfter: retryAfter}
	}

	// DM probe: a throwaway message proves the user can receive replies
	// before anything is persisted.
	probeCh, probeMsg, err := w.messenger.SendDirect(ctx, userID, gateway.Message{Content: "Creating your ticket..."})
	if err != nil {
		w.limiter.Release(userID)
		return nil, fmt.Errorf("%w: %v", ErrDMUnavailable, err)
	}
	if err := w.messenger.DeleteMessage(ctx, probeCh, probeMsg); err != nil {
		log.Printf("ticket: delete DM probe for %s: %v", userID, err)
	}

	id, err := w.store.CreateTicket(ctx, userID, ticketType, w.tickets.DefaultAccessLevel, subject, body)
	if err != nil {
		w.limiter.Release(userID)
		return nil, err
	}

	// Everything from here on is best-effort: the ticket exists.
	initMsgID, err := w.messenger.SendMessage(ctx, notifyChannel, incomingTicketMessage(id, userID, subject, ""))
	if err != nil {
		log.Printf("ticket: %s: send staff notification: %v", id, err)
	} else if err := w.store.SetInitMessageID(ctx, id, initMsgID); err != nil {
		log.Printf("ticket: %s: record init message: %v", id, err)
	}

	confirm := fmt.Sprintf(
		"Ticket created successfully!\nType: %s\nSubject: %q\nTicket ID: %s\nYou should receive a response within 48 hours.",
		ticketType, subject, id)
	if _, _, err := w.messenger.SendDirect(ctx, userID, gateway.Message{Content: confirm}); err != nil {
		log.Printf("ticket: %s: send confirmation DM: %v", id, err)
	}

	if w.mirror != nil {
		if t, err := w.store.Ticket(ctx, id); err == nil {
			w.mirror.TicketOpened(ctx, t)
		}
	}
	return &CreateResult{TicketID: id}, nil
}

// ClaimResult summarizes which external steps of a claim succeeded. The
// claim itself always holds when error is nil; everything else is
// best-effort.
type ClaimResult struct {
	ChannelID      string // workspace channel, empty if creation failed
	NotifyUpdated  bool
	ChannelCreated bool
	UserNotified   bool
}

// Claim atomically assigns the ticket to staffID and builds the workspace
// around it: the staff notification flips to claimed, a private channel
// scoped to the user and claimer is created, and the user is told by DM.
// Each external step is independently fault-isolated.
func (w *Workflow) Claim(ctx context.Context, ticketID, staffID string) (*ClaimResult, error) {
	t, err := w.store.Ticket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.Claimed() {
		return nil, fmt.Errorf("%w: %s held by %s", ErrAlreadyClaimed, ticketID, *t.StaffID)
	}

	ok, err := w.store.ClaimTicket(ctx, ticketID, staffID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race after the existence check.
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClaimed, ticketID)
	}
	t.StaffID = &staffID

	res := &ClaimResult{}
	notifyChannel, routed := w.tickets.Routing[t.Subtype()]
	if !routed {
		log.Printf("ticket: %s: no notification channel routed for subtype %q", ticketID, t.Subtype())
	}

	if routed && t.InitMsgID != nil {
		err := w.messenger.EditMessage(ctx, notifyChannel, *t.InitMsgID,
			incomingTicketMessage(ticketID, t.UserID, t.Subject, staffID))
		if err != nil {
			log.Printf("ticket: %s: update staff notification: %v", ticketID, err)
		} else {
			res.NotifyUpdated = true
		}
	}

	channelID, err := w.messenger.CreateTicketChannel(ctx, "", w.tickets.ActiveCategory,
		"ticket-"+strings.ToLower(ticketID), []string{t.UserID, staffID})
	if err != nil {
		log.Printf("ticket: %s: create workspace channel: %v", ticketID, err)
	} else {
		res.ChannelCreated = true
		res.ChannelID = channelID
		if err := w.store.SetChannelID(ctx, ticketID, channelID); err != nil {
			log.Printf("ticket: %s: record workspace channel: %v", ticketID, err)
		}
		if _, err := w.messenger.SendMessage(ctx, channelID, workspaceHeaderMessage(t)); err != nil {
			log.Printf("ticket: %s: post workspace header: %v", ticketID, err)
		}
	}

	staffName := staffID
	if u, err := w.messenger.User(ctx, staffID); err == nil {
		staffName = u.Username
	}
	dm := fmt.Sprintf("Your ticket %s has been claimed by %s. You should receive a reply shortly.", ticketID, staffName)
	if _, _, err := w.messenger.SendDirect(ctx, t.UserID, gateway.Message{Content: dm}); err != nil {
		log.Printf("ticket: %s: notify user of claim: %v", ticketID, err)
	} else {
		res.UserNotified = true
	}

	if w.mirror != nil {
		w.mirror.TicketClaimed(ctx, t, staffID)
	}
	return res, nil
}

// ReplyStaff appends a staff reply to the thread and forwards it to the
// user by DM. With closePrompt the DM additionally invites the user to
// close the ticket. Persistence errors propagate; the DM is best-effort.
func (w *Workflow) ReplyStaff(ctx context.Context, ticketID, text string, closePrompt bool) error {
	t, err := w.store.Ticket(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := w.store.AddMessageStaff(ctx, ticketID, text, closePrompt); err != nil {
		return err
	}

	staffName := ""
	if t.StaffID != nil {
		staffName = *t.StaffID
		if u, err := w.messenger.User(ctx, *t.StaffID); err == nil {
			staffName = u.Username
		}
	}

	content := fmt.Sprintf("Reply from %s on ticket %s:\n%s\n\nTo reply, press the button below and type your message.",
		staffName, ticketID, text)
	buttons := []gateway.Button{{
		Label:    "Reply",
		Style:    gateway.StylePrimary,
		CustomID: ReplyUserButtonPrefix + ticketID,
	}}
	if closePrompt {
		content += "\n\nIf this reply resolved your ticket, press Close Ticket. If it didn't, just reply again."
		buttons = append(buttons, gateway.Button{
			Label:    "Close Ticket",
			Style:    gateway.StyleDanger,
			CustomID: CloseButtonPrefix + ticketID,
		})
	}
	msg := gateway.Message{Content: content, Rows: []gateway.Row{{Buttons: buttons}}}
	if _, _, err := w.messenger.SendDirect(ctx, t.UserID, msg); err != nil {
		log.Printf("ticket: %s: forward staff reply to user: %v", ticketID, err)
	}
	return nil
}

// ReplyUser appends a user reply to the thread and forwards it into the
// ticket's workspace channel. Persistence errors propagate; the forward is
// best-effort.
func (w *Workflow) ReplyUser(ctx context.Context, ticketID, text string) error {
	t, err := w.store.Ticket(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := w.store.AddMessageUser(ctx, ticketID, text); err != nil {
		return err
	}

	if t.TicketChannelID == nil {
		log.Printf("ticket: %s: user reply persisted but no workspace channel to forward to", ticketID)
		return nil
	}
	userName := t.UserID
	if u, err := w.messenger.User(ctx, t.UserID); err == nil {
		userName = u.Username
	}
	content := fmt.Sprintf("Reply from %s on ticket %s:\n%s", userName, ticketID, text)
	if _, err := w.messenger.SendMessage(ctx, *t.TicketChannelID, gateway.Message{Content: content}); err != nil {
		log.Printf("ticket: %s: forward user reply to workspace: %v", ticketID, err)
	}
	return nil
}

// Transfer moves the ticket to a new access level and returns it to the
// unclaimed pool; the staff notification's claim button is re-enabled so
// another team can pick it up. Existing messages are untouched.
func (w *Workflow) Transfer(ctx context.Context, ticketID, accessLevel string) error {
	if accessLevel == "" {
		return &ValidationError{Violations: []string{"access level is required"}}
	}
	t, err := w.store.Ticket(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := w.store.TransferTicket(ctx, ticketID, accessLevel); err != nil {
		return err
	}

	if notifyChannel, ok := w.tickets.Routing[t.Subtype()]; ok && t.InitMsgID != nil {
		err := w.messenger.EditMessage(ctx, notifyChannel, *t.InitMsgID,
			incomingTicketMessage(ticketID, t.UserID, t.Subject, ""))
		if err != nil {
			log.Printf("ticket: %s: re-open staff notification after transfer: %v", ticketID, err)
		}
	}

	if w.mirror != nil {
		w.mirror.TicketTransferred(ctx, t, accessLevel)
	}
	return nil
}

// Close tears down the ticket's external artifacts (workspace channel,
// staff notification message) and tells the user. The row, its messages,
// and its claim state are left untouched: closed state is the absence of
// artifacts, and the ticket remains queryable forever.
func (w *Workflow) Close(ctx context.Context, ticketID string) error {
	t, err := w.store.Ticket(ctx, ticketID)
	if err != nil {
		return err
	}

	dm := fmt.Sprintf("Your ticket %s was closed. Thank you for getting in touch!", ticketID)
	if _, _, err := w.messenger.SendDirect(ctx, t.UserID, gateway.Message{Content: dm}); err != nil {
		log.Printf("ticket: %s: notify user of close: %v", ticketID, err)
	}

	if t.TicketChannelID != nil {
		if err := w.messenger.DeleteChannel(ctx, *t.TicketChannelID); err != nil {
			log.Printf("ticket: %s: delete workspace channel: %v", ticketID, err)
		}
	}

	if notifyChannel, ok := w.tickets.Routing[t.Subtype()]; ok && t.InitMsgID != nil {
		if err := w.messenger.DeleteMessage(ctx, notifyChannel, *t.InitMsgID); err != nil {
			log.Printf("ticket: %s: delete staff notification: %v", ticketID, err)
		}
	}

	if w.mirror != nil {
		w.mirror.TicketClosed(ctx, t)
	}
	return nil
}

// subtypeOf returns the routing key of a ticket type ("contact-mods" →
// "mods").
func subtypeOf(ticketType string) string {
	if i := strings.Index(ticketType, "-"); i >= 0 {
		return ticketType[i+1:]
	}
	return ""
}

// incomingTicketMessage builds the staff notification. An empty claimedBy
// renders the unclaimed state with an enabled claim button; a non-empty
// one shows the claimant and disables the button.
func incomingTicketMessage(ticketID, userID, subject, claimedBy string) gateway.Message {
	claimant := "Nobody"
	label := "Claim"
	style := gateway.StyleSuccess
	disabled := false
	if claimedBy != "" {
		claimant = "<@" + claimedBy + ">"
		label = "Claimed"
		style = gateway.StyleSecondary
		disabled = true
	}
	content := fmt.Sprintf("### Incoming Ticket\nCreated by: <@%s>\nSubject: %s\n\nClaimed by: %s",
		userID, subject, claimant)
	return gateway.Message{
		Content: content,
		Rows: []gateway.Row{{Buttons: []gateway.Button{{
			Label:    label,
			Style:    style,
			CustomID: ClaimButtonPrefix + ticketID,
			Disabled: disabled,
		}}}},
	}
}

// workspaceHeaderMessage builds the first message of a workspace channel:
// the full ticket plus the staff controls (reply select, transfer select,
// close button).
func workspaceHeaderMessage(t *models.Ticket) gateway.Message {
	staff := ""
	if t.StaffID != nil {
		staff = *t.StaffID
	}
	content := fmt.Sprintf(
		"### Ticket %s\nCreated by: <@%s>\nClaimed by: <@%s>\nType: %s\nAccess level: %s\n\nSubject: %s\n\n%s",
		t.TicketID, t.UserID, staff, t.TicketType, t.AccessLevel, t.Subject, t.Body)

	replySelect := &gateway.Select{
		CustomID:    ReplyStaffPrefix + t.TicketID,
		Placeholder: "Select reply type...",
		Options: []gateway.SelectOption{
			{Label: "Without Prompt", Description: "Reply without a prompt to close the ticket", Value: "no_prompt"},
			{Label: "With Prompt", Description: "Reply with a prompt to close the ticket", Value: "yes_prompt"},
		},
	}
	transferOptions := make([]gateway.SelectOption, 0, len(AccessLevels))
	for _, level := range AccessLevels {
		transferOptions = append(transferOptions, gateway.SelectOption{
			Label: strings.ToUpper(level[:1]) + level[1:], Value: level,
		})
	}
	transferSelect := &gateway.Select{
		CustomID:    TransferPrefix + t.TicketID,
		Placeholder: "Transfer to access level...",
		Options:     transferOptions,
	}
	closeButton := gateway.Button{
		Label:    "Close Ticket",
		Style:    gateway.StyleDanger,
		CustomID: CloseButtonPrefix + t.TicketID,
	}
	return gateway.Message{
		Content: content,
		Rows: []gateway.Row{
			{Select: replySelect},
			{Select: transferSelect},
			{Buttons: []gateway.Button{closeButton}},
		},
	}
}
