package connections

import (
	"time"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Peer is the other user on a connection, resolved for display.
type Peer struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Connection is one edge between two users. At most one record exists per
// unordered pair; the remote backend enforces that. Direction (requester
// vs target) decides which side sees it as incoming.
type Connection struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requester_id"`
	TargetID    string    `json:"target_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	Peer        Peer      `json:"peer"`
}

func (c Connection) Key() string { return c.ID }

// Incoming reports whether the viewer is on the receiving side.
func (c Connection) Incoming(viewerID string) bool {
	return c.TargetID == viewerID
}

// PeerID returns the counterpart of the viewer on this edge.
func (c Connection) PeerID(viewerID string) string {
	if c.RequesterID == viewerID {
		return c.TargetID
	}
	return c.RequesterID
}

func connectionFromRow(r gateway.Row) Connection {
	return Connection{
		ID:          r.String("id"),
		RequesterID: r.String("requester_id"),
		TargetID:    r.String("target_id"),
		Status:      r.String("status"),
		CreatedAt:   r.Time("created_at"),
	}
}
