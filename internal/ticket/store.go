package ticket

import (
	"context"
	"errors"
	"fmt"

	"github.com/quayhaven/quaydesk/internal/models"
	"gorm.io/gorm"
)

// maxIDAttempts bounds the ticket-ID collision retry during creation.
const maxIDAttempts = 5

// Store provides durable CRUD over tickets and their message threads. All
// mutations are single statements; claim and transfer are atomic
// conditional updates so concurrent staff never race past each other.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store.
func NewStore(gdb *gorm.DB) (*Store, error) {
	if gdb == nil {
		return nil, fmt.Errorf("ticket: store: db is required")
	}
	return &Store{db: gdb}, nil
}

// CreateTicket inserts a new unclaimed ticket and returns its generated
// ID. On a primary-key collision the ID is regenerated, up to
// maxIDAttempts, before giving up with a PersistenceError.
func (s *Store) CreateTicket(ctx context.Context, userID, ticketType, accessLevel, subject, body string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		t := models.Ticket{
			TicketID:    NewTicketID(),
			UserID:      userID,
			TicketType:  ticketType,
			AccessLevel: accessLevel,
			Subject:     subject,
			Body:        body,
		}
		err := s.db.WithContext(ctx).Create(&t).Error
		if err == nil {
			return t.TicketID, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", &PersistenceError{Op: "create ticket", Err: err}
		}
		lastErr = err
	}
	return "", &PersistenceError{Op: fmt.Sprintf("create ticket: %d id collisions", maxIDAttempts), Err: lastErr}
}

// Ticket returns the ticket by ID, or ErrNotFound.
func (s *Store) Ticket(ctx context.Context, id string) (*models.Ticket, error) {
	var t models.Ticket
	err := s.db.WithContext(ctx).Where("ticket_id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get ticket", Err: err}
	}
	return &t, nil
}

// Messages returns the ticket's full thread in insertion order.
func (s *Store) Messages(ctx context.Context, id string) ([]models.TicketMessage, error) {
	var msgs []models.TicketMessage
	err := s.db.WithContext(ctx).
		Where("ticket_id = ?", id).
		Order("message_id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, &PersistenceError{Op: "get messages", Err: err}
	}
	return msgs, nil
}

// TicketsByUser returns the user's tickets, most recent first, capped at
// limit (<= 0 means no cap).
func (s *Store) TicketsByUser(ctx context.Context, userID string, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	q := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&tickets).Error; err != nil {
		return nil, &PersistenceError{Op: "get tickets by user", Err: err}
	}
	return tickets, nil
}

// RecentMessage returns the most recent message on the ticket, or
// ErrNotFound when the thread is empty.
func (s *Store) RecentMessage(ctx context.Context, id string) (*models.TicketMessage, error) {
	var msg models.TicketMessage
	err := s.db.WithContext(ctx).
		Where("ticket_id = ?", id).
		Order("message_id DESC").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no messages for %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get recent message", Err: err}
	}
	return &msg, nil
}

// ClaimTicket assigns staffID to the ticket only if it is currently
// unclaimed: a single conditional UPDATE, so of two simultaneous claimants
// exactly one sees true. It does not distinguish a missing ticket from a
// lost race; callers check existence first.
func (s *Store) ClaimTicket(ctx context.Context, id, staffID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("ticket_id = ? AND staff_id IS NULL", id).
		Update("staff_id", staffID)
	if res.Error != nil {
		return false, &PersistenceError{Op: "claim ticket", Err: res.Error}
	}
	return res.RowsAffected > 0, nil
}

// AddMessageUser appends a user message to the thread. The sender is
// resolved to the ticket's owner.
func (s *Store) AddMessageUser(ctx context.Context, id, text string) error {
	t, err := s.Ticket(ctx, id)
	if err != nil {
		return err
	}
	msg := models.TicketMessage{
		TicketID: id,
		SenderID: t.UserID,
		SentBy:   models.SentByUser,
		Message:  text,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return &PersistenceError{Op: "add user message", Err: err}
	}
	return nil
}

// AddMessageStaff appends a staff message to the thread, failing with
// ErrUnclaimed when no staff member holds the ticket. closePrompt marks
// messages that additionally invite the user to close the ticket.
func (s *Store) AddMessageStaff(ctx context.Context, id, text string, closePrompt bool) error {
	t, err := s.Ticket(ctx, id)
	if err != nil {
		return err
	}
	if !t.Claimed() {
		return fmt.Errorf("%w: %s", ErrUnclaimed, id)
	}
	msg := models.TicketMessage{
		TicketID:    id,
		SenderID:    *t.StaffID,
		SentBy:      models.SentByStaff,
		Message:     text,
		ClosePrompt: closePrompt,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return &PersistenceError{Op: "add staff message", Err: err}
	}
	return nil
}

// TransferTicket moves the ticket to a new access level and clears the
// staff assignment in one atomic update, returning it to the unclaimed
// pool.
func (s *Store) TransferTicket(ctx context.Context, id, accessLevel string) error {
	return s.updateTicket(ctx, id, "transfer ticket", map[string]interface{}{
		"access_level": accessLevel,
		"staff_id":     nil,
	})
}

// SetInitMessageID records the staff-notification message on the ticket.
func (s *Store) SetInitMessageID(ctx context.Context, id, msgID string) error {
	return s.updateTicket(ctx, id, "set init message", map[string]interface{}{"init_msg_id": msgID})
}

// SetChannelID records the workspace channel on the ticket.
func (s *Store) SetChannelID(ctx context.Context, id, channelID string) error {
	return s.updateTicket(ctx, id, "set channel", map[string]interface{}{"ticket_channel_id": channelID})
}

// updateTicket applies a single UPDATE and maps a missing row to
// ErrNotFound. RowsAffected 0 can also mean the values were already set,
// so existence decides.
func (s *Store) updateTicket(ctx context.Context, id, op string, values map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("ticket_id = ?", id).
		Updates(values)
	if res.Error != nil {
		return &PersistenceError{Op: op, Err: res.Error}
	}
	if res.RowsAffected == 0 {
		if _, err := s.Ticket(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
