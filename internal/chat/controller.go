package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

// Controller owns the draft text for one conversation and the send flow.
type Controller struct {
	gw       gateway.Gateway
	viewerID string
	peerID   string
	timeout  time.Duration

	mu    sync.Mutex
	busy  bool
	draft string
}

func NewController(gw gateway.Gateway, viewerID, peerID string, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Controller{gw: gw, viewerID: viewerID, peerID: peerID, timeout: timeout}
}

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Send clears the draft before the call goes out and puts it back if the
// send fails. Clearing first keeps the input snappy; the restore-on-failure
// half is deliberate, so a network blip never eats the user's text.
func (c *Controller) Send(ctx context.Context) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	c.mu.Lock()
	body := c.draft
	if strings.TrimSpace(body) == "" {
		c.mu.Unlock()
		return gateway.NewFault(gateway.FaultInvalid, "message text required")
	}
	c.draft = ""
	c.busy = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.gw.Insert(ctx, "direct_messages", gateway.Row{
		"id":           uuid.NewString(),
		"sender_id":    c.viewerID,
		"recipient_id": c.peerID,
		"body":         body,
	}); err != nil {
		c.mu.Lock()
		// Keep any text typed meanwhile; only restore into an empty box.
		if c.draft == "" {
			c.draft = body
		}
		c.mu.Unlock()
		return gateway.Classify(err)
	}
	return nil
}

// MarkRead records the viewer's last-read watermark for this conversation.
func (c *Controller) MarkRead(ctx context.Context, at time.Time) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	mine := gateway.Eq("user_id", c.viewerID).And("peer_id", gateway.OpEq, c.peerID)
	existing, err := c.gw.Query(ctx, "dm_reads", gateway.Query{Filter: mine, Limit: 1})
	if err != nil {
		return gateway.Classify(err)
	}
	if len(existing) > 0 {
		_, err = c.gw.Update(ctx, "dm_reads", mine, gateway.Row{"last_read_at": at.UTC()})
	} else {
		_, err = c.gw.Insert(ctx, "dm_reads", gateway.Row{
			"id":           uuid.NewString(),
			"user_id":      c.viewerID,
			"peer_id":      c.peerID,
			"last_read_at": at.UTC(),
		})
	}
	if err != nil {
		return gateway.Classify(err)
	}
	return nil
}
