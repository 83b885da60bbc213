package gateway

import (
	"context"
	"fmt"
	"sync"
)

// MockPlatform implements Platform for testing. It records every call and
// supports scripted failures per capability.
type MockPlatform struct {
	mu sync.Mutex

	nextID int

	Sent       []SentMessage
	Edits      []EditedMessage
	Deleted    []DeletedMessage
	Directs    []DirectMessage
	Channels   []CreatedChannel
	DeletedChs []string
	Responses  []SentResponse
	Deferred   []InteractionRef
	Edited     []EditedResponse
	Modals     []PresentedModal
	Choices    [][]Choice

	Users map[string]*User

	// Scripted failures; nil means the call succeeds.
	FailSend          error
	FailEdit          error
	FailDelete        error
	FailDirect        error
	FailCreateChannel error
	FailDeleteChannel error
	FailUser          error
	FailRespond       error
}

// SentMessage records one SendMessage call.
type SentMessage struct {
	ChannelID string
	MessageID string
	Msg       Message
}

// EditedMessage records one EditMessage call.
type EditedMessage struct {
	ChannelID string
	MessageID string
	Msg       Message
}

// DeletedMessage records one DeleteMessage call.
type DeletedMessage struct {
	ChannelID string
	MessageID string
}

// DirectMessage records one SendDirect call.
type DirectMessage struct {
	UserID    string
	ChannelID string
	MessageID string
	Msg       Message
}

// CreatedChannel records one CreateTicketChannel call.
type CreatedChannel struct {
	ID       string
	GuildID  string
	ParentID string
	Name     string
	Members  []string
}

// SentResponse records one Respond call.
type SentResponse struct {
	Ref InteractionRef
	R   Response
}

// EditedResponse records one EditResponse call.
type EditedResponse struct {
	Ref     InteractionRef
	Content string
}

// PresentedModal records one PresentModal call.
type PresentedModal struct {
	Ref InteractionRef
	M   Modal
}

// NewMockPlatform creates a MockPlatform.
func NewMockPlatform() *MockPlatform {
	return &MockPlatform{Users: make(map[string]*User)}
}

func (m *MockPlatform) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

// SendMessage records the message and returns a generated message ID.
func (m *MockPlatform) SendMessage(_ context.Context, channelID string, msg Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend != nil {
		return "", m.FailSend
	}
	id := m.id("msg")
	m.Sent = append(m.Sent, SentMessage{ChannelID: channelID, MessageID: id, Msg: msg})
	return id, nil
}

// EditMessage records the edit.
func (m *MockPlatform) EditMessage(_ context.Context, channelID, messageID string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailEdit != nil {
		return m.FailEdit
	}
	m.Edits = append(m.Edits, EditedMessage{ChannelID: channelID, MessageID: messageID, Msg: msg})
	return nil
}

// DeleteMessage records the deletion.
func (m *MockPlatform) DeleteMessage(_ context.Context, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		return m.FailDelete
	}
	m.Deleted = append(m.Deleted, DeletedMessage{ChannelID: channelID, MessageID: messageID})
	return nil
}

// SendDirect records the DM and returns generated channel and message IDs.
func (m *MockPlatform) SendDirect(_ context.Context, userID string, msg Message) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDirect != nil {
		return "", "", m.FailDirect
	}
	chID := "dm-" + userID
	msgID := m.id("dmsg")
	m.Directs = append(m.Directs, DirectMessage{UserID: userID, ChannelID: chID, MessageID: msgID, Msg: msg})
	return chID, msgID, nil
}

// CreateTicketChannel records the channel and returns a generated ID.
func (m *MockPlatform) CreateTicketChannel(_ context.Context, guildID, parentID, name string, memberIDs []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreateChannel != nil {
		return "", m.FailCreateChannel
	}
	id := m.id("ch")
	m.Channels = append(m.Channels, CreatedChannel{ID: id, GuildID: guildID, ParentID: parentID, Name: name, Members: memberIDs})
	return id, nil
}

// DeleteChannel records the deletion.
func (m *MockPlatform) DeleteChannel(_ context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDeleteChannel != nil {
		return m.FailDeleteChannel
	}
	m.DeletedChs = append(m.DeletedChs, channelID)
	return nil
}

// User returns the scripted user, or a stub named after the ID.
func (m *MockPlatform) User(_ context.Context, userID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUser != nil {
		return nil, m.FailUser
	}
	if u, ok := m.Users[userID]; ok {
		return u, nil
	}
	return &User{ID: userID, Username: "user-" + userID}, nil
}

// Respond records the response.
func (m *MockPlatform) Respond(_ context.Context, ref InteractionRef, r Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRespond != nil {
		return m.FailRespond
	}
	m.Responses = append(m.Responses, SentResponse{Ref: ref, R: r})
	return nil
}

// RespondDeferred records the deferral.
func (m *MockPlatform) RespondDeferred(_ context.Context, ref InteractionRef, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRespond != nil {
		return m.FailRespond
	}
	m.Deferred = append(m.Deferred, ref)
	return nil
}

// EditResponse records the edit.
func (m *MockPlatform) EditResponse(_ context.Context, ref InteractionRef, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRespond != nil {
		return m.FailRespond
	}
	m.Edited = append(m.Edited, EditedResponse{Ref: ref, Content: content})
	return nil
}

// PresentModal records the modal.
func (m *MockPlatform) PresentModal(_ context.Context, ref InteractionRef, modal Modal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRespond != nil {
		return m.FailRespond
	}
	m.Modals = append(m.Modals, PresentedModal{Ref: ref, M: modal})
	return nil
}

// RespondChoices records the autocomplete choices.
func (m *MockPlatform) RespondChoices(_ context.Context, ref InteractionRef, choices []Choice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRespond != nil {
		return m.FailRespond
	}
	m.Choices = append(m.Choices, choices)
	return nil
}

// LastResponse returns the most recent Respond call, or nil.
func (m *MockPlatform) LastResponse() *SentResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Responses) == 0 {
		return nil
	}
	r := m.Responses[len(m.Responses)-1]
	return &r
}

// ModalCount returns how many modals have been presented.
func (m *MockPlatform) ModalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Modals)
}

// LastModal returns the most recent PresentModal call, or nil.
func (m *MockPlatform) LastModal() *PresentedModal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Modals) == 0 {
		return nil
	}
	p := m.Modals[len(m.Modals)-1]
	return &p
}

var _ Platform = (*MockPlatform)(nil)
