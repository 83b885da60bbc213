package discord

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/quayhaven/quaydesk/internal/gateway"
)

// --- Mock Discord session ---

type mockSession struct {
	mu          sync.Mutex
	opened      bool
	closeCalled bool
	openErr     error

	sentMessages []sentMessage
	sendErr      error
	edits        []*discordgo.MessageEdit
	deleted      [][2]string
	dmChannels   []string
	dmErr        error
	created      []createdChannel
	createErr    error
	deletedChs   []string
	users        map[string]*discordgo.User
	responses    []interactionResponse
	respondErr   error
	edited       []*discordgo.WebhookEdit
	overwrites   []*discordgo.ApplicationCommand

	handlers []interface{}
}

type sentMessage struct {
	channelID string
	data      *discordgo.MessageSend
}

type createdChannel struct {
	guildID string
	data    discordgo.GuildChannelCreateData
}

type interactionResponse struct {
	interaction *discordgo.Interaction
	resp        *discordgo.InteractionResponse
}

func newMockSession() *mockSession {
	return &mockSession{users: make(map[string]*discordgo.User)}
}

func (m *mockSession) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalled = true
	return nil
}

func (m *mockSession) AddHandler(handler interface{}) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
	return func() {}
}

func (m *mockSession) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overwrites = commands
	return commands, nil
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sentMessages = append(m.sentMessages, sentMessage{channelID: channelID, data: data})
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", len(m.sentMessages))}, nil
}

func (m *mockSession) ChannelMessageEditComplex(edit *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, edit)
	return &discordgo.Message{ID: edit.ID}, nil
}

func (m *mockSession) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, [2]string{channelID, messageID})
	return nil
}

func (m *mockSession) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dmErr != nil {
		return nil, m.dmErr
	}
	m.dmChannels = append(m.dmChannels, recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (m *mockSession) GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, createdChannel{guildID: guildID, data: data})
	return &discordgo.Channel{ID: fmt.Sprintf("ch-%d", len(m.created))}, nil
}

func (m *mockSession) ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedChs = append(m.deletedChs, channelID)
	return &discordgo.Channel{ID: channelID}, nil
}

func (m *mockSession) User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user not found: %s", userID)
}

func (m *mockSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.respondErr != nil {
		return m.respondErr
	}
	m.responses = append(m.responses, interactionResponse{interaction: interaction, resp: resp})
	return nil
}

func (m *mockSession) InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edited = append(m.edited, newresp)
	return &discordgo.Message{}, nil
}

func newConnectedAdapter(t *testing.T) (*Adapter, *mockSession) {
	t.Helper()
	mock := newMockSession()
	a, err := New(AdapterOpts{GuildID: "guild-1", Session: mock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return a, mock
}

// --- Construction and lifecycle ---

func TestNew_RequiresTokenOrSession(t *testing.T) {
	if _, err := New(AdapterOpts{GuildID: "g"}); err == nil {
		t.Error("expected error without token or session")
	}
	if _, err := New(AdapterOpts{BotToken: "tok"}); err == nil {
		t.Error("expected error without guild ID")
	}
}

func TestConnect_OpensSession(t *testing.T) {
	a, mock := newConnectedAdapter(t)
	if !mock.opened {
		t.Error("session not opened")
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Errorf("second Connect: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !mock.closeCalled {
		t.Error("session not closed")
	}
	if err := a.Connect(context.Background()); err == nil {
		t.Error("Connect after Close should fail")
	}
}

func TestRegisterCommands(t *testing.T) {
	a, mock := newConnectedAdapter(t)

	// Application ID unknown until Ready.
	cmds := []*discordgo.ApplicationCommand{{Name: "ticket"}}
	if err := a.RegisterCommands(context.Background(), cmds); err == nil {
		t.Fatal("expected error before Ready")
	}

	a.mu.Lock()
	a.appID = "app-1"
	a.mu.Unlock()
	if err := a.RegisterCommands(context.Background(), cmds); err != nil {
		t.Fatalf("RegisterCommands: %v", err)
	}
	if len(mock.overwrites) != 1 || mock.overwrites[0].Name != "ticket" {
		t.Errorf("overwrites = %+v", mock.overwrites)
	}
}

// --- Event conversion ---

func TestToEvent_CommandWithSubcommand(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "int-1",
		AppID:     "app-1",
		Token:     "tok",
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "ch-1",
		GuildID:   "guild-1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "user-1"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "ticket",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{
					Name: "create",
					Type: discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandInteractionDataOption{
						{Name: "type", Type: discordgo.ApplicationCommandOptionString, Value: "report"},
					},
				},
			},
		},
	}}

	ev, ok := toEvent(i)
	if !ok {
		t.Fatal("conversion rejected")
	}
	if ev.Kind != gateway.KindCommand || ev.Key != "ticket create" {
		t.Errorf("kind=%s key=%q", ev.Kind, ev.Key)
	}
	if ev.UserID != "user-1" || ev.GuildID != "guild-1" {
		t.Errorf("identity = %+v", ev)
	}
	if ev.Fields["type"] != "report" {
		t.Errorf("fields = %v", ev.Fields)
	}
	if ev.Ref.ID != "int-1" || ev.Ref.Token != "tok" {
		t.Errorf("ref = %+v", ev.Ref)
	}
}

func TestToEvent_ButtonCarriesInitiator(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		User: &discordgo.User{ID: "presser"},
		Message: &discordgo.Message{
			ID:          "msg-9",
			Interaction: &discordgo.MessageInteraction{User: &discordgo.User{ID: "owner"}},
		},
		Data: discordgo.MessageComponentInteractionData{
			CustomID:      "ticket_claim_AAAA0001",
			ComponentType: discordgo.ButtonComponent,
		},
	}}

	ev, ok := toEvent(i)
	if !ok {
		t.Fatal("conversion rejected")
	}
	if ev.Kind != gateway.KindButton || ev.Key != "ticket_claim_AAAA0001" {
		t.Errorf("kind=%s key=%q", ev.Kind, ev.Key)
	}
	if ev.UserID != "presser" || ev.InitiatorID != "owner" || ev.MessageID != "msg-9" {
		t.Errorf("event = %+v", ev)
	}
}

func TestToEvent_SelectValues(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		User: &discordgo.User{ID: "u"},
		Data: discordgo.MessageComponentInteractionData{
			CustomID:      "ticket_reply_staff_AAAA0001",
			ComponentType: discordgo.SelectMenuComponent,
			Values:        []string{"yes_prompt"},
		},
	}}

	ev, ok := toEvent(i)
	if !ok {
		t.Fatal("conversion rejected")
	}
	if ev.Kind != gateway.KindSelect || len(ev.Values) != 1 || ev.Values[0] != "yes_prompt" {
		t.Errorf("event = %+v", ev)
	}
}

func TestToEvent_ModalFields(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionModalSubmit,
		User: &discordgo.User{ID: "u"},
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: "ticket_create_report",
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: "subject", Value: "Cheater"},
				}},
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: "body", Value: "Details here"},
				}},
			},
		},
	}}

	ev, ok := toEvent(i)
	if !ok {
		t.Fatal("conversion rejected")
	}
	if ev.Kind != gateway.KindModal || ev.Key != "ticket_create_report" {
		t.Errorf("kind=%s key=%q", ev.Kind, ev.Key)
	}
	if ev.Fields["subject"] != "Cheater" || ev.Fields["body"] != "Details here" {
		t.Errorf("fields = %v", ev.Fields)
	}
}

func TestToEvent_RejectsPing(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionPing,
	}}
	if _, ok := toEvent(i); ok {
		t.Error("ping interaction should be rejected")
	}
}

// --- Outbound surface ---

func TestSendMessage_BuildsComponents(t *testing.T) {
	a, mock := newConnectedAdapter(t)

	id, err := a.SendMessage(context.Background(), "ch-1", gateway.Message{
		Content: "Incoming ticket",
		Rows: []gateway.Row{
			{Buttons: []gateway.Button{{Label: "Claim", CustomID: "ticket_claim_X", Style: gateway.StylePrimary}}},
			{Select: &gateway.Select{CustomID: "pick", Options: []gateway.SelectOption{{Label: "A", Value: "a"}}}},
		},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id == "" {
		t.Error("empty message ID")
	}

	sent := mock.sentMessages[0]
	if sent.channelID != "ch-1" || len(sent.data.Components) != 2 {
		t.Fatalf("sent = %+v", sent)
	}
	row, ok := sent.data.Components[0].(discordgo.ActionsRow)
	if !ok {
		t.Fatalf("component type %T", sent.data.Components[0])
	}
	btn, ok := row.Components[0].(discordgo.Button)
	if !ok || btn.CustomID != "ticket_claim_X" || btn.Style != discordgo.PrimaryButton {
		t.Errorf("button = %+v", row.Components[0])
	}
	row2 := sent.data.Components[1].(discordgo.ActionsRow)
	sel, ok := row2.Components[0].(discordgo.SelectMenu)
	if !ok || sel.CustomID != "pick" || sel.MenuType != discordgo.StringSelectMenu {
		t.Errorf("select = %+v", row2.Components[0])
	}
}

func TestSendDirect_OpensDMChannel(t *testing.T) {
	a, mock := newConnectedAdapter(t)

	chID, msgID, err := a.SendDirect(context.Background(), "user-1", gateway.Message{Content: "hi"})
	if err != nil {
		t.Fatalf("SendDirect: %v", err)
	}
	if chID != "dm-user-1" || msgID == "" {
		t.Errorf("chID=%q msgID=%q", chID, msgID)
	}

	mock.dmErr = fmt.Errorf("cannot DM this user")
	if _, _, err := a.SendDirect(context.Background(), "user-2", gateway.Message{Content: "hi"}); err == nil {
		t.Error("expected error when DM channel cannot be opened")
	}
}

func TestCreateTicketChannel_Overwrites(t *testing.T) {
	a, mock := newConnectedAdapter(t)

	id, err := a.CreateTicketChannel(context.Background(), "", "cat-1", "ticket-aaaa0001", []string{"user-1", "staff-1"})
	if err != nil {
		t.Fatalf("CreateTicketChannel: %v", err)
	}
	if id == "" {
		t.Error("empty channel ID")
	}

	cc := mock.created[0]
	if cc.guildID != "guild-1" {
		t.Errorf("guild = %q, want adapter default", cc.guildID)
	}
	if cc.data.ParentID != "cat-1" || cc.data.Type != discordgo.ChannelTypeGuildText {
		t.Errorf("data = %+v", cc.data)
	}
	ow := cc.data.PermissionOverwrites
	if len(ow) != 3 {
		t.Fatalf("overwrites = %d, want everyone + 2 members", len(ow))
	}
	if ow[0].ID != "guild-1" || ow[0].Deny&discordgo.PermissionViewChannel == 0 {
		t.Errorf("everyone overwrite = %+v", ow[0])
	}
	for _, o := range ow[1:] {
		if o.Type != discordgo.PermissionOverwriteTypeMember || o.Allow&discordgo.PermissionViewChannel == 0 {
			t.Errorf("member overwrite = %+v", o)
		}
	}
}

func TestRespond_EphemeralFlag(t *testing.T) {
	a, mock := newConnectedAdapter(t)
	ref := gateway.InteractionRef{ID: "int-1", AppID: "app-1", Token: "tok"}

	if err := a.Respond(context.Background(), ref, gateway.Response{Content: "done", Private: true}); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	r := mock.responses[0]
	if r.interaction.ID != "int-1" || r.interaction.Token != "tok" {
		t.Errorf("interaction = %+v", r.interaction)
	}
	if r.resp.Type != discordgo.InteractionResponseChannelMessageWithSource {
		t.Errorf("type = %v", r.resp.Type)
	}
	if r.resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("ephemeral flag not set for private response")
	}
}

func TestPresentModal(t *testing.T) {
	a, mock := newConnectedAdapter(t)

	err := a.PresentModal(context.Background(), gateway.InteractionRef{ID: "i", Token: "t"}, gateway.Modal{
		CustomID: "ticket_create_report",
		Title:    "Open a ticket",
		Fields: []gateway.ModalField{
			{CustomID: "subject", Label: "Subject", Required: true, MinLength: 2, MaxLength: 90},
			{CustomID: "body", Label: "Details", Paragraph: true, Required: true, MinLength: 10, MaxLength: 1000},
		},
	})
	if err != nil {
		t.Fatalf("PresentModal: %v", err)
	}

	resp := mock.responses[0].resp
	if resp.Type != discordgo.InteractionResponseModal || resp.Data.CustomID != "ticket_create_report" {
		t.Fatalf("resp = %+v", resp)
	}
	if len(resp.Data.Components) != 2 {
		t.Fatalf("components = %d", len(resp.Data.Components))
	}
	row := resp.Data.Components[1].(discordgo.ActionsRow)
	input := row.Components[0].(discordgo.TextInput)
	if input.Style != discordgo.TextInputParagraph || input.MaxLength != 1000 {
		t.Errorf("input = %+v", input)
	}
}

func TestRespondChoices(t *testing.T) {
	a, mock := newConnectedAdapter(t)

	err := a.RespondChoices(context.Background(), gateway.InteractionRef{ID: "i"}, []gateway.Choice{
		{Name: "AAAA0001: Cheater in lobby", Value: "AAAA0001"},
	})
	if err != nil {
		t.Fatalf("RespondChoices: %v", err)
	}
	resp := mock.responses[0].resp
	if resp.Type != discordgo.InteractionApplicationCommandAutocompleteResult {
		t.Errorf("type = %v", resp.Type)
	}
	if len(resp.Data.Choices) != 1 || resp.Data.Choices[0].Value != "AAAA0001" {
		t.Errorf("choices = %+v", resp.Data.Choices)
	}
}

// --- Rate-limit retry ---

type rateLimitedSession struct {
	*mockSession
	failures int
	calls    int
}

func (r *rateLimitedSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.calls++
	if r.calls <= r.failures {
		return nil, &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
	}
	return r.mockSession.ChannelMessageSendComplex(channelID, data, options...)
}

func TestSendMessage_RetriesOnRateLimit(t *testing.T) {
	mock := &rateLimitedSession{mockSession: newMockSession(), failures: 2}
	a, err := New(AdapterOpts{GuildID: "guild-1", Session: mock})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	a.baseBackoff = time.Millisecond
	a.maxBackoff = 2 * time.Millisecond

	if _, err := a.SendMessage(context.Background(), "ch", gateway.Message{Content: "x"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if mock.calls != 3 {
		t.Errorf("calls = %d, want 2 rate-limited + 1 success", mock.calls)
	}
}

func TestSendMessage_GivesUpOnOtherErrors(t *testing.T) {
	a, mock := newConnectedAdapter(t)
	mock.sendErr = fmt.Errorf("forbidden")

	_, err := a.SendMessage(context.Background(), "ch", gateway.Message{Content: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
}
