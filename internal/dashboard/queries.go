package dashboard

import (
	"time"

	"github.com/quayhaven/quaydesk/internal/models"
	"gorm.io/gorm"
)

// QueueRow holds open/claimed counts for one (type, access level) queue.
type QueueRow struct {
	TicketType  string
	AccessLevel string
	Unclaimed   int
	Claimed     int
	Total       int
}

// QueueSummary returns per-queue ticket counts. A ticket counts as
// claimed when a staff member holds it.
func QueueSummary(db *gorm.DB) ([]QueueRow, error) {
	type row struct {
		TicketType  string
		AccessLevel string
		Claimed     bool
		Count       int
	}
	var rows []row
	err := db.Model(&models.Ticket{}).
		Select("ticket_type, access_level, staff_id IS NOT NULL as claimed, count(*) as count").
		Group("ticket_type, access_level, claimed").
		Order("ticket_type, access_level").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	queueMap := make(map[[2]string]*QueueRow)
	var order [][2]string
	for _, r := range rows {
		key := [2]string{r.TicketType, r.AccessLevel}
		q, ok := queueMap[key]
		if !ok {
			q = &QueueRow{TicketType: r.TicketType, AccessLevel: r.AccessLevel}
			queueMap[key] = q
			order = append(order, key)
		}
		q.Total += r.Count
		if r.Claimed {
			q.Claimed += r.Count
		} else {
			q.Unclaimed += r.Count
		}
	}

	result := make([]QueueRow, 0, len(order))
	for _, key := range order {
		result = append(result, *queueMap[key])
	}
	return result, nil
}

// TicketRow holds ticket data for the list view.
type TicketRow struct {
	TicketID    string
	UserID      string
	StaffID     string // empty when unclaimed
	TicketType  string
	AccessLevel string
	Subject     string
	CreatedAt   time.Time
}

// TicketList returns all tickets, most recent first.
func TicketList(db *gorm.DB) ([]TicketRow, error) {
	var tickets []models.Ticket
	if err := db.Order("created_at DESC").Find(&tickets).Error; err != nil {
		return nil, err
	}

	rows := make([]TicketRow, len(tickets))
	for i, t := range tickets {
		rows[i] = TicketRow{
			TicketID:    t.TicketID,
			UserID:      t.UserID,
			TicketType:  t.TicketType,
			AccessLevel: t.AccessLevel,
			Subject:     t.Subject,
			CreatedAt:   t.CreatedAt,
		}
		if t.StaffID != nil {
			rows[i].StaffID = *t.StaffID
		}
	}
	return rows, nil
}

// MessageRow holds one thread message for the detail view.
type MessageRow struct {
	SenderID    string
	SentBy      string
	Message     string
	ClosePrompt bool
	CreatedAt   time.Time
}

// TicketDetail holds one ticket with its full thread.
type TicketDetail struct {
	Ticket   TicketRow
	Body     string
	Messages []MessageRow
}

// TicketByID returns the ticket and its thread, or gorm.ErrRecordNotFound.
func TicketByID(db *gorm.DB, id string) (*TicketDetail, error) {
	var t models.Ticket
	if err := db.Where("ticket_id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	var msgs []models.TicketMessage
	if err := db.Where("ticket_id = ?", id).Order("message_id ASC").Find(&msgs).Error; err != nil {
		return nil, err
	}

	detail := &TicketDetail{
		Ticket: TicketRow{
			TicketID:    t.TicketID,
			UserID:      t.UserID,
			TicketType:  t.TicketType,
			AccessLevel: t.AccessLevel,
			Subject:     t.Subject,
			CreatedAt:   t.CreatedAt,
		},
		Body: t.Body,
	}
	if t.StaffID != nil {
		detail.Ticket.StaffID = *t.StaffID
	}
	for _, m := range msgs {
		detail.Messages = append(detail.Messages, MessageRow{
			SenderID:    m.SenderID,
			SentBy:      m.SentBy,
			Message:     m.Message,
			ClosePrompt: m.ClosePrompt,
			CreatedAt:   m.CreatedAt,
		})
	}
	return detail, nil
}
