package events

import (
	"time"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

// StatusGoing is the attendance status written on RSVP.
const StatusGoing = "going"

// Event is the denormalized event view-model. AttendeeCount is a derived
// aggregate; IsGoing is viewer-relative.
type Event struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Location      string    `json:"location,omitempty"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at,omitempty"`
	CreatorID     string    `json:"creator_id"`
	CreatedAt     time.Time `json:"created_at"`
	AttendeeCount int       `json:"attendee_count"`
	IsGoing       bool      `json:"is_going"`
}

func (e Event) Key() string { return e.ID }

func eventFromRow(r gateway.Row) Event {
	return Event{
		ID:          r.String("id"),
		Title:       r.String("title"),
		Description: r.String("description"),
		Location:    r.String("location"),
		StartsAt:    r.Time("starts_at"),
		EndsAt:      r.Time("ends_at"),
		CreatorID:   r.String("creator_id"),
		CreatedAt:   r.Time("created_at"),
	}
}
