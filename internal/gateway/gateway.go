// Package gateway routes inbound Discord interactions to registered
// handlers and defines the platform capability surface the rest of
// QuayDesk talks to. Platform-specific implementations live in
// subpackages (gateway/discord).
package gateway

import "context"

// Kind classifies an inbound interaction event.
type Kind string

const (
	KindCommand      Kind = "command"
	KindButton       Kind = "button"
	KindSelect       Kind = "select"
	KindModal        Kind = "modal"
	KindAutocomplete Kind = "autocomplete"
)

// InteractionRef identifies one interaction for response purposes. It is
// opaque to handlers; the platform implementation knows how to answer it.
type InteractionRef struct {
	ID    string
	AppID string
	Token string
}

// Event is a platform-neutral inbound interaction.
type Event struct {
	Kind        Kind
	Key         string // command name, or component/modal custom ID
	UserID      string // the acting user
	InitiatorID string // author of the interaction the component's message belongs to (empty if unknown)
	ChannelID   string
	GuildID     string
	MessageID   string            // message the component is attached to
	Values      []string          // select menu selections
	Fields      map[string]string // modal field values keyed by field custom ID
	Ref         InteractionRef
}

// ButtonStyle selects the platform rendering of a button.
type ButtonStyle string

const (
	StylePrimary   ButtonStyle = "primary"
	StyleSecondary ButtonStyle = "secondary"
	StyleSuccess   ButtonStyle = "success"
	StyleDanger    ButtonStyle = "danger"
)

// Button is an action button attached to a message.
type Button struct {
	Label    string
	CustomID string
	Style    ButtonStyle
	Disabled bool
}

// SelectOption is one choice in a select menu.
type SelectOption struct {
	Label       string
	Description string
	Value       string
}

// Select is a dropdown menu attached to a message.
type Select struct {
	CustomID    string
	Placeholder string
	Options     []SelectOption
}

// Row is one component row: either up to five buttons or a single select.
type Row struct {
	Buttons []Button
	Select  *Select
}

// Message is an outbound message with optional interactive components.
type Message struct {
	Content string
	Rows    []Row
}

// Response answers an interaction directly.
type Response struct {
	Content string
	Private bool // visible only to the acting user
}

// ModalField is one text input in a modal form.
type ModalField struct {
	CustomID    string
	Label       string
	Placeholder string
	Paragraph   bool // multi-line input
	Required    bool
	MinLength   int
	MaxLength   int
}

// Modal is a form presented in response to an interaction. Its submission
// arrives later as a KindModal event carrying the same custom ID.
type Modal struct {
	CustomID string
	Title    string
	Fields   []ModalField
}

// Choice is one autocomplete suggestion.
type Choice struct {
	Name  string
	Value string
}

// User is the platform identity the core needs: an opaque ID and a
// display name. Fetched, never owned.
type User struct {
	ID       string
	Username string
}

// Messenger is the outbound capability surface required by the ticket
// workflow. All calls are network calls and honor ctx.
type Messenger interface {
	// SendMessage posts to a channel and returns the new message ID.
	SendMessage(ctx context.Context, channelID string, msg Message) (string, error)

	// EditMessage replaces the content and components of an existing message.
	EditMessage(ctx context.Context, channelID, messageID string, msg Message) error

	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// SendDirect delivers a DM to a user, returning the DM channel ID and
	// the new message ID.
	SendDirect(ctx context.Context, userID string, msg Message) (channelID, messageID string, err error)

	// CreateTicketChannel creates a text channel under parentID visible only
	// to the listed members, returning the new channel ID.
	CreateTicketChannel(ctx context.Context, guildID, parentID, name string, memberIDs []string) (string, error)

	// DeleteChannel removes a channel.
	DeleteChannel(ctx context.Context, channelID string) error

	// User fetches a user by ID.
	User(ctx context.Context, userID string) (*User, error)
}

// Interactor answers interactions: direct responses, deferred responses,
// modal presentation, and autocomplete choices.
type Interactor interface {
	Respond(ctx context.Context, ref InteractionRef, r Response) error

	// RespondDeferred acknowledges the interaction immediately; the visible
	// reply is filled in later via EditResponse.
	RespondDeferred(ctx context.Context, ref InteractionRef, private bool) error

	EditResponse(ctx context.Context, ref InteractionRef, content string) error

	PresentModal(ctx context.Context, ref InteractionRef, m Modal) error

	RespondChoices(ctx context.Context, ref InteractionRef, choices []Choice) error
}

// Platform is the full collaborator surface provided by the transport layer.
type Platform interface {
	Messenger
	Interactor
}
