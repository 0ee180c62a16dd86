package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

// Controller wraps event mutations with pre-flight checks and fault
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

func (c *Controller) KnownDeleted(eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleted[eventID]
}

func (c *Controller) CreateEvent(ctx context.Context, title, description, location string, startsAt, endsAt time.Time) (string, error) {
	if c.viewerID == "" {
		return "", gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	if strings.TrimSpace(title) == "" {
		return "", gateway.NewFault(gateway.FaultInvalid, "event title required")
	}
	if !endsAt.IsZero() && endsAt.Before(startsAt) {
		return "", gateway.NewFault(gateway.FaultInvalid, "event ends before it starts")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	row := gateway.Row{
		"id":          uuid.NewString(),
		"title":       title,
		"description": description,
		"location":    location,
		"starts_at":   startsAt.UTC(),
		"creator_id":  c.viewerID,
	}
	if !endsAt.IsZero() {
		row["ends_at"] = endsAt.UTC()
	}
	if _, err := c.gw.Insert(ctx, "events", row); err != nil {
		return "", gateway.Classify(err)
	}
	return row.String("id"), nil
}

// ToggleAttendance checks the viewer's current RSVP and inserts or deletes
// the join row. The existence check and the write are two calls, so two
// rapid toggles can both observe "absent"; the attendance table's unique
// (event_id, user_id) constraint rejects the second insert.
func (c *Controller) ToggleAttendance(ctx context.Context, eventID string) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	if c.KnownDeleted(eventID) {
		return gateway.NewFault(gateway.FaultVanished, "event no longer exists")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.checkEventExists(ctx, eventID); err != nil {
		return err
	}
	mine := gateway.Eq("event_id", eventID).And("user_id", gateway.OpEq, c.viewerID)
	existing, err := c.gw.Query(ctx, "event_attendees", gateway.Query{Filter: mine, Limit: 1})
	if err != nil {
		return c.classify(eventID, err)
	}
	if len(existing) > 0 {
		if _, err := c.gw.Delete(ctx, "event_attendees", mine); err != nil {
			return c.classify(eventID, err)
		}
		return nil
	}
	if _, err := c.gw.Insert(ctx, "event_attendees", gateway.Row{
		"id":       uuid.NewString(),
		"event_id": eventID,
		"user_id":  c.viewerID,
		"status":   StatusGoing,
	}); err != nil {
		return c.classify(eventID, err)
	}
	return nil
}

func (c *Controller) DeleteEvent(ctx context.Context, eventID string) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.gw.Query(ctx, "events", gateway.Query{Filter: gateway.Eq("id", eventID), Limit: 1})
	if err != nil {
		return c.classify(eventID, err)
	}
	if len(rows) == 0 {
		c.markDeleted(eventID)
		return gateway.NewFault(gateway.FaultVanished, "event no longer exists")
	}
	if rows[0].String("creator_id") != c.viewerID {
		return gateway.NewFault(gateway.FaultDenied, "only the creator can delete this event")
	}
	if _, err := c.gw.Delete(ctx, "event_attendees", gateway.Eq("event_id", eventID)); err != nil {
		return c.classify(eventID, err)
	}
	if _, err := c.gw.Delete(ctx, "events", gateway.Eq("id", eventID)); err != nil {
		return c.classify(eventID, err)
	}
	c.markDeleted(eventID)
	return nil
}

func (c *Controller) checkEventExists(ctx context.Context, eventID string) error {
	rows, err := c.gw.Query(ctx, "events", gateway.Query{
		Select: []string{"id"},
		Filter: gateway.Eq("id", eventID),
		Limit:  1,
	})
	if err != nil {
		return gateway.Classify(err)
	}
	if len(rows) == 0 {
		c.markDeleted(eventID)
		return gateway.NewFault(gateway.FaultVanished, "event no longer exists")
	}
	return nil
}

func (c *Controller) classify(eventID string, err error) error {
	fault := gateway.Classify(err)
	if fault.Kind == gateway.FaultVanished {
		c.markDeleted(eventID)
	}
	return fault
}

func (c *Controller) markDeleted(eventID string) {
	c.mu.Lock()
	c.deleted[eventID] = true
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
