// Package models defines the GORM entities persisted by QuayDesk.
package models

import "time"

// Sender values for TicketMessage.SentBy.
const (
	SentByStaff = "staff"
	SentByUser  = "user"
)

// Ticket is a persisted support request. The row is permanent: closing a
// ticket removes its external artifacts (staff notification message and
// workspace channel) but never deletes or flags the row, so tickets double
// as an audit record.
type Ticket struct {
	TicketID        string  `gorm:"primaryKey;size:8"`
	UserID          string  `gorm:"size:32;not null;index"`
	StaffID         *string `gorm:"size:32"`
	TicketType      string  `gorm:"size:32;not null"` // "<kind>-<subtype>", e.g. "contact-mods"
	AccessLevel     string  `gorm:"size:16;not null"`
	Subject         string  `gorm:"size:90;not null"`
	Body            string  `gorm:"type:text;not null"`
	InitMsgID       *string `gorm:"size:32"`
	TicketChannelID *string `gorm:"size:32"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Messages []TicketMessage `gorm:"foreignKey:TicketID;constraint:OnDelete:CASCADE"`
}

// Claimed reports whether the ticket currently has an assigned staff member.
func (t *Ticket) Claimed() bool {
	return t.StaffID != nil && *t.StaffID != ""
}

// Subtype returns the routing key of the ticket type: the part after the
// first dash ("contact-mods" → "mods"). Empty when the type has no dash.
func (t *Ticket) Subtype() string {
	for i := 0; i < len(t.TicketType); i++ {
		if t.TicketType[i] == '-' {
			return t.TicketType[i+1:]
		}
	}
	return ""
}

// TicketMessage is one entry in a ticket's append-only reply thread.
// Messages are immutable once persisted; message_id assignment gives the
// insertion order.
type TicketMessage struct {
	MessageID   uint   `gorm:"primaryKey;autoIncrement"`
	TicketID    string `gorm:"size:8;not null;index"`
	SenderID    string `gorm:"size:32;not null"`
	SentBy      string `gorm:"size:8;not null"` // SentByStaff or SentByUser
	Message     string `gorm:"type:text;not null"`
	ClosePrompt bool   `gorm:"default:false"`
	CreatedAt   time.Time
}
