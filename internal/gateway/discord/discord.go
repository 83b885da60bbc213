// Package discord implements the gateway Platform for Discord using the
// Gateway WebSocket and interaction endpoints.
package discord

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/quayhaven/quaydesk/internal/gateway"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) AddHandler(handler interface{}) func() {
	return r.s.AddHandler(handler)
}
func (r *realSession) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	return r.s.ApplicationCommandBulkOverwrite(appID, guildID, commands, options...)
}
func (r *realSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendComplex(channelID, data, options...)
}
func (r *realSession) ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageEditComplex(m, options...)
}
func (r *realSession) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	return r.s.ChannelMessageDelete(channelID, messageID, options...)
}
func (r *realSession) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return r.s.UserChannelCreate(recipientID, options...)
}
func (r *realSession) GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return r.s.GuildChannelCreateComplex(guildID, data, options...)
}
func (r *realSession) ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return r.s.ChannelDelete(channelID, options...)
}
func (r *realSession) User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error) {
	return r.s.User(userID, options...)
}
func (r *realSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	return r.s.InteractionRespond(interaction, resp, options...)
}
func (r *realSession) InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.InteractionResponseEdit(interaction, newresp, options...)
}

// Adapter implements gateway.Platform for Discord via the Gateway WebSocket.
type Adapter struct {
	sess     session
	botToken string
	guildID  string

	mu            sync.Mutex
	connected     bool
	closed        bool
	appID         string
	botUserID     string
	removeHandler func()

	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken string // Discord bot token
	GuildID  string // guild the bot serves
	// For testing: inject a mock session instead of real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.GuildID == "" {
		return nil, fmt.Errorf("discord: guild ID is required")
	}

	a := &Adapter{
		botToken:    opts.BotToken,
		guildID:     opts.GuildID,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
	if opts.Session != nil {
		a.sess = opts.Session
	}
	return a, nil
}

// Connect establishes the Discord Gateway WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}

	// Create real session if not injected (production path).
	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages
		a.sess = &realSession{s: dg}
	}

	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.mu.Lock()
		a.botUserID = r.User.ID
		if r.Application != nil {
			a.appID = r.Application.ID
		} else {
			// For bots the application ID matches the bot user ID.
			a.appID = r.User.ID
		}
		a.mu.Unlock()
		log.Printf("discord: connected as %s (ID: %s)", r.User.Username, r.User.ID)
	})
	a.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		log.Printf("discord: gateway disconnected, discordgo will auto-reconnect")
	})
	a.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		log.Printf("discord: gateway session resumed")
	})

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	a.connected = true
	return nil
}

// RegisterCommands overwrites the guild's application command set. Must
// be called after Connect, once the application ID is known.
func (a *Adapter) RegisterCommands(ctx context.Context, commands []*discordgo.ApplicationCommand) error {
	a.mu.Lock()
	appID := a.appID
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return fmt.Errorf("discord: not connected")
	}
	if appID == "" {
		return fmt.Errorf("discord: application ID not yet known")
	}

	err := a.retryOnRateLimit(ctx, func() error {
		_, overwriteErr := a.sess.ApplicationCommandBulkOverwrite(appID, a.guildID, commands)
		return overwriteErr
	})
	if err != nil {
		return fmt.Errorf("discord: register commands: %w", err)
	}
	return nil
}

// Listen registers an interaction handler that converts every incoming
// interaction to a gateway.Event and hands it to fn. Must be called
// after Connect.
func (a *Adapter) Listen(ctx context.Context, fn func(context.Context, *gateway.Event)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return fmt.Errorf("discord: not connected")
	}

	a.removeHandler = a.sess.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		ev, ok := toEvent(i)
		if !ok {
			return
		}
		fn(ctx, ev)
	})
	return nil
}

// Close gracefully shuts down the adapter connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.removeHandler != nil {
		a.removeHandler()
	}
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// toEvent converts an interaction to the platform-neutral event form.
// Unsupported interaction types (like pings) report ok = false.
func toEvent(i *discordgo.InteractionCreate) (*gateway.Event, bool) {
	ev := &gateway.Event{
		ChannelID: i.ChannelID,
		GuildID:   i.GuildID,
		Ref: gateway.InteractionRef{
			ID:    i.ID,
			AppID: i.AppID,
			Token: i.Token,
		},
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand, discordgo.InteractionApplicationCommandAutocomplete:
		data := i.ApplicationCommandData()
		ev.Kind = gateway.KindCommand
		if i.Type == discordgo.InteractionApplicationCommandAutocomplete {
			ev.Kind = gateway.KindAutocomplete
		}
		ev.Key = data.Name
		opts := data.Options
		// Subcommands fold into the key; their options become the fields.
		if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
			ev.Key = data.Name + " " + opts[0].Name
			opts = opts[0].Options
		}
		ev.Fields = make(map[string]string, len(opts))
		for _, o := range opts {
			ev.Fields[o.Name] = optionString(o)
		}

	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		ev.Key = data.CustomID
		switch data.ComponentType {
		case discordgo.SelectMenuComponent:
			ev.Kind = gateway.KindSelect
			ev.Values = data.Values
		default:
			ev.Kind = gateway.KindButton
		}

	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		ev.Kind = gateway.KindModal
		ev.Key = data.CustomID
		ev.Fields = modalFields(data.Components)

	default:
		return nil, false
	}

	if i.Member != nil && i.Member.User != nil {
		ev.UserID = i.Member.User.ID
	} else if i.User != nil {
		ev.UserID = i.User.ID
	}
	if i.Message != nil {
		ev.MessageID = i.Message.ID
		if i.Message.Interaction != nil && i.Message.Interaction.User != nil {
			ev.InitiatorID = i.Message.Interaction.User.ID
		}
	}
	return ev, true
}

// optionString renders a command option value as a string regardless of
// its declared type.
func optionString(o *discordgo.ApplicationCommandInteractionDataOption) string {
	switch v := o.Value.(type) {
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// modalFields flattens submitted modal components into custom ID ->
// value pairs.
func modalFields(components []discordgo.MessageComponent) map[string]string {
	fields := make(map[string]string)
	for _, c := range components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if input, ok := inner.(*discordgo.TextInput); ok {
				fields[input.CustomID] = input.Value
			}
		}
	}
	return fields
}

// SendMessage posts to a channel and returns the new message ID.
func (a *Adapter) SendMessage(ctx context.Context, channelID string, msg gateway.Message) (string, error) {
	var sent *discordgo.Message
	err := a.retryOnRateLimit(ctx, func() error {
		var sendErr error
		sent, sendErr = a.sess.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Content:    msg.Content,
			Components: buildComponents(msg.Rows),
		})
		return sendErr
	})
	if err != nil {
		return "", fmt.Errorf("discord: send message: %w", err)
	}
	return sent.ID, nil
}

// EditMessage replaces the content and components of an existing message.
func (a *Adapter) EditMessage(ctx context.Context, channelID, messageID string, msg gateway.Message) error {
	components := buildComponents(msg.Rows)
	err := a.retryOnRateLimit(ctx, func() error {
		_, editErr := a.sess.ChannelMessageEditComplex(&discordgo.MessageEdit{
			Channel:    channelID,
			ID:         messageID,
			Content:    &msg.Content,
			Components: &components,
		})
		return editErr
	})
	if err != nil {
		return fmt.Errorf("discord: edit message: %w", err)
	}
	return nil
}

// DeleteMessage removes a message.
func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := a.retryOnRateLimit(ctx, func() error {
		return a.sess.ChannelMessageDelete(channelID, messageID)
	})
	if err != nil {
		return fmt.Errorf("discord: delete message: %w", err)
	}
	return nil
}

// SendDirect delivers a DM to a user, returning the DM channel ID and
// the new message ID.
func (a *Adapter) SendDirect(ctx context.Context, userID string, msg gateway.Message) (string, string, error) {
	ch, err := a.sess.UserChannelCreate(userID)
	if err != nil {
		return "", "", fmt.Errorf("discord: open DM channel: %w", err)
	}
	msgID, err := a.SendMessage(ctx, ch.ID, msg)
	if err != nil {
		return "", "", err
	}
	return ch.ID, msgID, nil
}

// CreateTicketChannel creates a text channel under parentID visible only
// to the listed members, returning the new channel ID. The @everyone
// role is denied view access; each member is granted view and send.
func (a *Adapter) CreateTicketChannel(ctx context.Context, guildID, parentID, name string, memberIDs []string) (string, error) {
	if guildID == "" {
		guildID = a.guildID
	}

	overwrites := []*discordgo.PermissionOverwrite{
		{
			// The @everyone role ID equals the guild ID.
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
	}
	for _, id := range memberIDs {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    id,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory,
		})
	}

	var ch *discordgo.Channel
	err := a.retryOnRateLimit(ctx, func() error {
		var createErr error
		ch, createErr = a.sess.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name:                 name,
			Type:                 discordgo.ChannelTypeGuildText,
			ParentID:             parentID,
			PermissionOverwrites: overwrites,
		})
		return createErr
	})
	if err != nil {
		return "", fmt.Errorf("discord: create channel: %w", err)
	}
	return ch.ID, nil
}

// DeleteChannel removes a channel.
func (a *Adapter) DeleteChannel(ctx context.Context, channelID string) error {
	err := a.retryOnRateLimit(ctx, func() error {
		_, deleteErr := a.sess.ChannelDelete(channelID)
		return deleteErr
	})
	if err != nil {
		return fmt.Errorf("discord: delete channel: %w", err)
	}
	return nil
}

// User fetches a user by ID.
func (a *Adapter) User(ctx context.Context, userID string) (*gateway.User, error) {
	var u *discordgo.User
	err := a.retryOnRateLimit(ctx, func() error {
		var userErr error
		u, userErr = a.sess.User(userID)
		return userErr
	})
	if err != nil {
		return nil, fmt.Errorf("discord: fetch user: %w", err)
	}
	return &gateway.User{ID: u.ID, Username: u.Username}, nil
}

// Respond answers an interaction with a visible message.
func (a *Adapter) Respond(ctx context.Context, ref gateway.InteractionRef, r gateway.Response) error {
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: r.Content},
	}
	if r.Private {
		resp.Data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := a.sess.InteractionRespond(toInteraction(ref), resp); err != nil {
		return fmt.Errorf("discord: respond: %w", err)
	}
	return nil
}

// RespondDeferred acknowledges the interaction; the visible reply is
// filled in later via EditResponse.
func (a *Adapter) RespondDeferred(ctx context.Context, ref gateway.InteractionRef, private bool) error {
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{},
	}
	if private {
		resp.Data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := a.sess.InteractionRespond(toInteraction(ref), resp); err != nil {
		return fmt.Errorf("discord: defer response: %w", err)
	}
	return nil
}

// EditResponse replaces the content of an earlier (possibly deferred)
// interaction response.
func (a *Adapter) EditResponse(ctx context.Context, ref gateway.InteractionRef, content string) error {
	_, err := a.sess.InteractionResponseEdit(toInteraction(ref), &discordgo.WebhookEdit{
		Content: &content,
	})
	if err != nil {
		return fmt.Errorf("discord: edit response: %w", err)
	}
	return nil
}

// PresentModal responds to an interaction with a modal form.
func (a *Adapter) PresentModal(ctx context.Context, ref gateway.InteractionRef, m gateway.Modal) error {
	components := make([]discordgo.MessageComponent, 0, len(m.Fields))
	for _, f := range m.Fields {
		style := discordgo.TextInputShort
		if f.Paragraph {
			style = discordgo.TextInputParagraph
		}
		components = append(components, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    f.CustomID,
					Label:       f.Label,
					Placeholder: f.Placeholder,
					Style:       style,
					Required:    f.Required,
					MinLength:   f.MinLength,
					MaxLength:   f.MaxLength,
				},
			},
		})
	}

	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   m.CustomID,
			Title:      m.Title,
			Components: components,
		},
	}
	if err := a.sess.InteractionRespond(toInteraction(ref), resp); err != nil {
		return fmt.Errorf("discord: present modal: %w", err)
	}
	return nil
}

// RespondChoices answers an autocomplete interaction with suggestions.
func (a *Adapter) RespondChoices(ctx context.Context, ref gateway.InteractionRef, choices []gateway.Choice) error {
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(choices))
	for _, c := range choices {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: c.Name, Value: c.Value})
	}
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: out},
	}
	if err := a.sess.InteractionRespond(toInteraction(ref), resp); err != nil {
		return fmt.Errorf("discord: respond choices: %w", err)
	}
	return nil
}

// retryOnRateLimit calls fn and retries with exponential backoff on
// Discord rate limit errors. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 {
			return err // not a rate limit error
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v",
			attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}

// toInteraction reconstructs the minimal interaction the REST endpoints
// need from a ref.
func toInteraction(ref gateway.InteractionRef) *discordgo.Interaction {
	return &discordgo.Interaction{ID: ref.ID, AppID: ref.AppID, Token: ref.Token}
}

// buildComponents translates component rows into Discord action rows.
func buildComponents(rows []gateway.Row) []discordgo.MessageComponent {
	var out []discordgo.MessageComponent
	for _, row := range rows {
		var inner []discordgo.MessageComponent
		for _, b := range row.Buttons {
			inner = append(inner, discordgo.Button{
				Label:    b.Label,
				CustomID: b.CustomID,
				Style:    buttonStyle(b.Style),
				Disabled: b.Disabled,
			})
		}
		if row.Select != nil {
			options := make([]discordgo.SelectMenuOption, 0, len(row.Select.Options))
			for _, o := range row.Select.Options {
				options = append(options, discordgo.SelectMenuOption{
					Label:       o.Label,
					Description: o.Description,
					Value:       o.Value,
				})
			}
			inner = append(inner, discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    row.Select.CustomID,
				Placeholder: row.Select.Placeholder,
				Options:     options,
			})
		}
		if len(inner) > 0 {
			out = append(out, discordgo.ActionsRow{Components: inner})
		}
	}
	return out
}

func buttonStyle(s gateway.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case gateway.StyleSecondary:
		return discordgo.SecondaryButton
	case gateway.StyleSuccess:
		return discordgo.SuccessButton
	case gateway.StyleDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}

var _ gateway.Platform = (*Adapter)(nil)
