package connections

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

// Controller issues connection mutations. The backend holds the real
// uniqueness guarantee per user pair; the pre-checks here only catch the
// common cases early.
type Controller struct {
	gw       gateway.Gateway
	viewerID string
	timeout  time.Duration

	mu   sync.Mutex
	busy bool
}

func NewController(gw gateway.Gateway, viewerID string, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Controller{gw: gw, viewerID: viewerID, timeout: timeout}
}

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Controller) SendRequest(ctx context.Context, targetID string) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	if targetID == "" || targetID == c.viewerID {
		return gateway.NewFault(gateway.FaultInvalid, "invalid connection target")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// One record per unordered pair: look for the edge in either direction.
	pair := gateway.AnyOf(
		gateway.Eq("requester_id", c.viewerID).And("target_id", gateway.OpEq, targetID),
		gateway.Eq("requester_id", targetID).And("target_id", gateway.OpEq, c.viewerID),
	)
	existing, err := c.gw.Query(ctx, "connections", gateway.Query{Filter: pair, Limit: 1})
	if err != nil {
		return gateway.Classify(err)
	}
	if len(existing) > 0 {
		return gateway.NewFault(gateway.FaultInvalid, "connection already exists")
	}

	if _, err := c.gw.Insert(ctx, "connections", gateway.Row{
		"id":           uuid.NewString(),
		"requester_id": c.viewerID,
		"target_id":    targetID,
		"status":       StatusPending,
	}); err != nil {
		return gateway.Classify(err)
	}
	return nil
}

// Respond accepts or rejects a pending incoming request. Only the target
// side may respond.
func (c *Controller) Respond(ctx context.Context, connectionID string, accept bool) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.gw.Query(ctx, "connections", gateway.Query{Filter: gateway.Eq("id", connectionID), Limit: 1})
	if err != nil {
		return gateway.Classify(err)
	}
	if len(rows) == 0 {
		return gateway.NewFault(gateway.FaultVanished, "request no longer exists")
	}
	conn := connectionFromRow(rows[0])
	if conn.TargetID != c.viewerID {
		return gateway.NewFault(gateway.FaultDenied, "only the recipient can respond")
	}
	if conn.Status != StatusPending {
		return gateway.NewFault(gateway.FaultInvalid, "request already resolved")
	}

	status := StatusRejected
	if accept {
		status = StatusAccepted
	}
	if _, err := c.gw.Update(ctx, "connections", gateway.Eq("id", connectionID), gateway.Row{"status": status}); err != nil {
		return gateway.Classify(err)
	}
	return nil
}

// Remove withdraws an outgoing request or severs an accepted connection.
func (c *Controller) Remove(ctx context.Context, connectionID string) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.gw.Query(ctx, "connections", gateway.Query{Filter: gateway.Eq("id", connectionID), Limit: 1})
	if err != nil {
		return gateway.Classify(err)
	}
	if len(rows) == 0 {
		// Already gone; nothing to undo.
		return nil
	}
	conn := connectionFromRow(rows[0])
	if conn.RequesterID != c.viewerID && conn.TargetID != c.viewerID {
		return gateway.NewFault(gateway.FaultDenied, "not part of this connection")
	}
	if _, err := c.gw.Delete(ctx, "connections", gateway.Eq("id", connectionID)); err != nil {
		return gateway.Classify(err)
	}
	return nil
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
