package feed

import (
	"time"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

// anonymousName is the display fallback when an author profile row is
// missing or a profile fetch degrades.
const anonymousName = "Anonymous"

type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Post is the denormalized view-model for one forum or group post.
// LikeCount and CommentCount are derived aggregates and never negative;
// IsLiked is meaningful only for the viewer the assembler ran for.
type Post struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Body         string    `json:"body,omitempty"`
	Author       Author    `json:"author"`
	Tags         []string  `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	IsLiked      bool      `json:"is_liked"`
}

func (p Post) Key() string { return p.ID }

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	Author    Author    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (c Comment) Key() string { return c.ID }

func postFromRow(r gateway.Row) Post {
	return Post{
		ID:        r.String("id"),
		Title:     r.String("title"),
		Body:      r.String("body"),
		Author:    Author{ID: r.String("author_id"), DisplayName: anonymousName},
		CreatedAt: r.Time("created_at"),
	}
}

func commentFromRow(r gateway.Row) Comment {
	return Comment{
		ID:        r.String("id"),
		PostID:    r.String("post_id"),
		Author:    Author{ID: r.String("author_id"), DisplayName: anonymousName},
		Body:      r.String("body"),
		CreatedAt: r.Time("created_at"),
	}
}

func authorFromRow(r gateway.Row) Author {
	a := Author{
		ID:          r.String("id"),
		DisplayName: r.String("display_name"),
		AvatarURL:   r.String("avatar_url"),
	}
	if a.DisplayName == "" {
		a.DisplayName = anonymousName
	}
	return a
}
