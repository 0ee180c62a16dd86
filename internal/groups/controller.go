package groups

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

// Controller wraps group mutations with pre-flight checks and fault
// classification.
type Controller struct {
	gw       gateway.Gateway
	viewerID string
	timeout  time.Duration

	mu      sync.Mutex
	busy    bool
	deleted map[string]bool
}

func NewController(gw gateway.Gateway, viewerID string, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Controller{gw: gw, viewerID: viewerID, timeout: timeout, deleted: map[string]bool{}}
}

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Controller) KnownDeleted(groupID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleted[groupID]
}

// CreateGroup creates the group row and then the creator's admin
// membership. The two calls are not atomic: a failure between them leaves
// a group with no members, which the backend offers no way to roll back.
// That gap is inherited from the remote contract and surfaced to the
// caller via the returned error rather than papered over.
func (c *Controller) CreateGroup(ctx context.Context, name, description, category string) (string, error) {
	if c.viewerID == "" {
		return "", gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	if strings.TrimSpace(name) == "" {
		return "", gateway.NewFault(gateway.FaultInvalid, "group name required")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id := uuid.NewString()
	if _, err := c.gw.Insert(ctx, "groups", gateway.Row{
		"id":          id,
		"name":        name,
		"description": description,
		"category":    category,
		"is_official": false,
		"creator_id":  c.viewerID,
	}); err != nil {
		return "", gateway.Classify(err)
	}
	if _, err := c.gw.Insert(ctx, "group_members", gateway.Row{
		"id":       uuid.NewString(),
		"group_id": id,
		"user_id":  c.viewerID,
		"role":     RoleAdmin,
	}); err != nil {
		return id, gateway.Classify(err)
	}
	return id, nil
}

func (c *Controller) JoinGroup(ctx context.Context, groupID string) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	if c.KnownDeleted(groupID) {
		return gateway.NewFault(gateway.FaultVanished, "group no longer exists")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.checkGroupExists(ctx, groupID); err != nil {
		return err
	}
	mine := gateway.Eq("group_id", groupID).And("user_id", gateway.OpEq, c.viewerID)
	existing, err := c.gw.Query(ctx, "group_members", gateway.Query{Filter: mine, Limit: 1})
	if err != nil {
		return c.classify(groupID, err)
	}
	if len(existing) > 0 {
		return gateway.NewFault(gateway.FaultInvalid, "already a member")
	}
	if _, err := c.gw.Insert(ctx, "group_members", gateway.Row{
		"id":       uuid.NewString(),
		"group_id": groupID,
		"user_id":  c.viewerID,
		"role":     RoleMember,
	}); err != nil {
		return c.classify(groupID, err)
	}
	return nil
}

func (c *Controller) LeaveGroup(ctx context.Context, groupID string) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	mine := gateway.Eq("group_id", groupID).And("user_id", gateway.OpEq, c.viewerID)
	if _, err := c.gw.Delete(ctx, "group_members", mine); err != nil {
		return c.classify(groupID, err)
	}
	return nil
}

func (c *Controller) DeleteGroup(ctx context.Context, groupID string) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.gw.Query(ctx, "groups", gateway.Query{Filter: gateway.Eq("id", groupID), Limit: 1})
	if err != nil {
		return c.classify(groupID, err)
	}
	if len(rows) == 0 {
		c.markDeleted(groupID)
		return gateway.NewFault(gateway.FaultVanished, "group no longer exists")
	}
	if rows[0].String("creator_id") != c.viewerID {
		return gateway.NewFault(gateway.FaultDenied, "only the creator can delete this group")
	}
	// Children first so other members' feeds drain before the group row
	// disappears; the backend cascades are not visible to the client.
	if _, err := c.gw.Delete(ctx, "group_messages", gateway.Eq("group_id", groupID)); err != nil {
		return c.classify(groupID, err)
	}
	if _, err := c.gw.Delete(ctx, "group_members", gateway.Eq("group_id", groupID)); err != nil {
		return c.classify(groupID, err)
	}
	if _, err := c.gw.Delete(ctx, "groups", gateway.Eq("id", groupID)); err != nil {
		return c.classify(groupID, err)
	}
	c.markDeleted(groupID)
	return nil
}

func (c *Controller) SendMessage(ctx context.Context, groupID, body string) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	if strings.TrimSpace(body) == "" {
		return gateway.NewFault(gateway.FaultInvalid, "message text required")
	}
	if c.KnownDeleted(groupID) {
		return gateway.NewFault(gateway.FaultVanished, "group no longer exists")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.checkGroupExists(ctx, groupID); err != nil {
		return err
	}
	if _, err := c.gw.Insert(ctx, "group_messages", gateway.Row{
		"id":        uuid.NewString(),
		"group_id":  groupID,
		"sender_id": c.viewerID,
		"body":      body,
	}); err != nil {
		return c.classify(groupID, err)
	}
	return nil
}

// MarkRead records the viewer's last-read watermark for unread counts.
func (c *Controller) MarkRead(ctx context.Context, groupID string, at time.Time) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	mine := gateway.Eq("group_id", groupID).And("user_id", gateway.OpEq, c.viewerID)
	existing, err := c.gw.Query(ctx, "group_reads", gateway.Query{Filter: mine, Limit: 1})
	if err != nil {
		return gateway.Classify(err)
	}
	if len(existing) > 0 {
		_, err = c.gw.Update(ctx, "group_reads", mine, gateway.Row{"last_read_at": at.UTC()})
	} else {
		_, err = c.gw.Insert(ctx, "group_reads", gateway.Row{
			"id":           uuid.NewString(),
			"group_id":     groupID,
			"user_id":      c.viewerID,
			"last_read_at": at.UTC(),
		})
	}
	if err != nil {
		return gateway.Classify(err)
	}
	return nil
}

func (c *Controller) checkGroupExists(ctx context.Context, groupID string) error {
	rows, err := c.gw.Query(ctx, "groups", gateway.Query{
		Select: []string{"id"},
		Filter: gateway.Eq("id", groupID),
		Limit:  1,
	})
	if err != nil {
		return gateway.Classify(err)
	}
	if len(rows) == 0 {
		c.markDeleted(groupID)
		return gateway.NewFault(gateway.FaultVanished, "group no longer exists")
	}
	return nil
}

func (c *Controller) classify(groupID string, err error) error {
	fault := gateway.Classify(err)
	if fault.Kind == gateway.FaultVanished {
		c.markDeleted(groupID)
	}
	return fault
}

func (c *Controller) markDeleted(groupID string) {
	c.mu.Lock()
	c.deleted[groupID] = true
	c.mu.Unlock()
}

func (c *Controller) begin() func() {
	c.mu.Lock()
	c.busy = true
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}
}
