package chat

import (
	"time"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

// DirectMessage is one message between the viewer and a single peer.
type DirectMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	SenderName  string    `json:"sender_name"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

func (m DirectMessage) Key() string { return m.ID }

func messageFromRow(r gateway.Row) DirectMessage {
	return DirectMessage{
		ID:          r.String("id"),
		SenderID:    r.String("sender_id"),
		RecipientID: r.String("recipient_id"),
		Body:        r.String("body"),
		CreatedAt:   r.Time("created_at"),
	}
}
