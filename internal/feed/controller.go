package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

// Controller wraps post mutations with pre-flight existence checks and
// failure classification. On success the reconciler reflects the change
// from the notification stream; the controller never double-applies it
// locally.
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
	return &Controller{
		gw:       gw,
		viewerID: viewerID,
		timeout:  timeout,
		deleted:  map[string]bool{},
	}
}

// Busy reports whether a mutation is in flight; it is guaranteed to reset
// on every return path.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// KnownDeleted reports whether the post was already observed as deleted,
// so callers can block further interaction with the dead detail view.
func (c *Controller) KnownDeleted(postID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleted[postID]
}

func (c *Controller) SubmitComment(ctx context.Context, postID, body string) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in to comment")
	}
	if strings.TrimSpace(body) == "" {
		return gateway.NewFault(gateway.FaultInvalid, "comment text required")
	}
	if c.KnownDeleted(postID) {
		return gateway.NewFault(gateway.FaultVanished, "post no longer exists")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.checkPostExists(ctx, postID); err != nil {
		return err
	}
	_, err := c.gw.Insert(ctx, "comments", gateway.Row{
		"id":        uuid.NewString(),
		"post_id":   postID,
		"author_id": c.viewerID,
		"body":      body,
	})
	if err != nil {
		return c.classify(postID, err)
	}
	return nil
}

// ToggleLike checks the join row's current existence and then inserts or
// deletes it. Two rapid toggles can both observe "absent"; the remote
// uniqueness constraint on (post_id, user_id) rejects the second insert.
func (c *Controller) ToggleLike(ctx context.Context, postID string) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in to like posts")
	}
	if c.KnownDeleted(postID) {
		return gateway.NewFault(gateway.FaultVanished, "post no longer exists")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.checkPostExists(ctx, postID); err != nil {
		return err
	}
	mine := gateway.Eq("post_id", postID).And("user_id", gateway.OpEq, c.viewerID)
	existing, err := c.gw.Query(ctx, "likes", gateway.Query{Filter: mine, Limit: 1})
	if err != nil {
		return c.classify(postID, err)
	}
	if len(existing) > 0 {
		_, err = c.gw.Delete(ctx, "likes", gateway.Eq("id", existing[0].String("id")))
	} else {
		_, err = c.gw.Insert(ctx, "likes", gateway.Row{
			"id":      uuid.NewString(),
			"post_id": postID,
			"user_id": c.viewerID,
		})
	}
	if err != nil {
		return c.classify(postID, err)
	}
	return nil
}

func (c *Controller) DeletePost(ctx context.Context, postID string) error {
	if c.viewerID == "" {
		return gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.gw.Query(ctx, "posts", gateway.Query{Filter: gateway.Eq("id", postID), Limit: 1})
	if err != nil {
		return c.classify(postID, err)
	}
	if len(rows) == 0 {
		c.markDeleted(postID)
		return gateway.NewFault(gateway.FaultVanished, "post no longer exists")
	}
	if rows[0].String("author_id") != c.viewerID {
		return gateway.NewFault(gateway.FaultDenied, "only the author can delete this post")
	}
	if _, err := c.gw.Delete(ctx, "posts", gateway.Eq("id", postID)); err != nil {
		return c.classify(postID, err)
	}
	c.markDeleted(postID)
	return nil
}

func (c *Controller) CreatePost(ctx context.Context, title, body string, tags []string) (string, error) {
	if c.viewerID == "" {
		return "", gateway.NewFault(gateway.FaultInvalid, "sign in required")
	}
	if strings.TrimSpace(title) == "" {
		return "", gateway.NewFault(gateway.FaultInvalid, "title required")
	}
	done := c.begin()
	defer done()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id := uuid.NewString()
	if _, err := c.gw.Insert(ctx, "posts", gateway.Row{
		"id":        id,
		"title":     title,
		"body":      body,
		"author_id": c.viewerID,
	}); err != nil {
		return "", gateway.Classify(err)
	}
	for _, tag := range tags {
		if _, err := c.gw.Insert(ctx, "post_tags", gateway.Row{
			"id":      uuid.NewString(),
			"post_id": id,
			"tag":     tag,
		}); err != nil {
			return id, gateway.Classify(err)
		}
	}
	return id, nil
}

// checkPostExists is the pre-flight guard against the vanished-parent
// race: when the parent is already gone the mutation is never issued.
func (c *Controller) checkPostExists(ctx context.Context, postID string) error {
	rows, err := c.gw.Query(ctx, "posts", gateway.Query{
		Select: []string{"id"},
		Filter: gateway.Eq("id", postID),
		Limit:  1,
	})
	if err != nil {
		return gateway.Classify(err)
	}
	if len(rows) == 0 {
		c.markDeleted(postID)
		return gateway.NewFault(gateway.FaultVanished, "post no longer exists")
	}
	return nil
}

func (c *Controller) classify(postID string, err error) error {
	fault := gateway.Classify(err)
	if fault.Kind == gateway.FaultVanished {
		c.markDeleted(postID)
	}
	return fault
}

func (c *Controller) markDeleted(postID string) {
	c.mu.Lock()
	c.deleted[postID] = true
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
