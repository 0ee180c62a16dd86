package groups

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/vowels52/SyncUp-sub000/internal/feed"
	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

// NewGroupFeed returns a posts reconciler scoped to one group's wall.
// Group posts live in the shared posts table with a group_id column, so
// ordering, like folding and delete handling come along unchanged.
func NewGroupFeed(gw gateway.Gateway, viewerID, groupID string) *feed.PostsReconciler {
	return feed.NewPostsReconciler(gw, viewerID, gateway.Eq("group_id", groupID))
}

// PostToGroup publishes a post on the group's wall. Members only.
func (c *Controller) PostToGroup(ctx context.Context, groupID, title, body string) (string, error) {
	if c.viewerID == "" {
		return "", gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	if strings.TrimSpace(title) == "" {
		return "", gateway.NewFault(gateway.FaultInvalid, "title required")
	}
	if c.KnownDeleted(groupID) {
		return "", gateway.NewFault(gateway.FaultVanished, "group no longer exists")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.checkGroupExists(ctx, groupID); err != nil {
		return "", err
	}
	mine := gateway.Eq("group_id", groupID).And("user_id", gateway.OpEq, c.viewerID)
	member, err := c.gw.Query(ctx, "group_members", gateway.Query{Filter: mine, Limit: 1})
	if err != nil {
		return "", c.classify(groupID, err)
	}
	if len(member) == 0 {
		return "", gateway.NewFault(gateway.FaultDenied, "join the group to post")
	}

	id := uuid.NewString()
	if _, err := c.gw.Insert(ctx, "posts", gateway.Row{
		"id":        id,
		"group_id":  groupID,
		"title":     title,
		"body":      body,
		"author_id": c.viewerID,
	}); err != nil {
		return "", c.classify(groupID, err)
	}
	return id, nil
}
