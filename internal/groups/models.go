package groups

import (
	"time"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Group is the denormalized club/group view-model. MemberCount is a
// derived aggregate; IsMember and Role are viewer-relative.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	IsOfficial  bool      `json:"is_official"`
	CreatorID   string    `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
	MemberCount int       `json:"member_count"`
	IsMember    bool      `json:"is_member"`
	Role        string    `json:"role,omitempty"`
}

func (g Group) Key() string { return g.ID }

type Membership struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
}

// Message is one group chat message.
type Message struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"group_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

func (m Message) Key() string { return m.ID }

func groupFromRow(r gateway.Row) Group {
	return Group{
		ID:          r.String("id"),
		Name:        r.String("name"),
		Description: r.String("description"),
		Category:    r.String("category"),
		IsOfficial:  r.Bool("is_official"),
		CreatorID:   r.String("creator_id"),
		CreatedAt:   r.Time("created_at"),
	}
}

func messageFromRow(r gateway.Row) Message {
	return Message{
		ID:        r.String("id"),
		GroupID:   r.String("group_id"),
		SenderID:  r.String("sender_id"),
		Body:      r.String("body"),
		CreatedAt: r.Time("created_at"),
	}
}
