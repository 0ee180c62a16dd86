package feed

import (
	"context"
	"log"
	"sync"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
	"github.com/vowels52/SyncUp-sub000/internal/reconcile"
)

// PostsReconciler keeps a newest-first post collection in sync with the
// posts change feed and folds like notifications into the derived counts
// without refetching the parent rows.
type PostsReconciler struct {
	gw       gateway.Gateway
	asm      *Assembler
	viewerID string
	scope    gateway.Filter

	mu     sync.Mutex
	col    *reconcile.Collection[Post]
	openID string

	posts    *reconcile.Handle
	likes    *reconcile.Handle
	comments *reconcile.Handle

	// OpenDeleted trips when the post open in a detail view vanishes; the
	// caller shows one notice and navigates away.
	OpenDeleted reconcile.Terminal
}

func NewPostsReconciler(gw gateway.Gateway, viewerID string, scope gateway.Filter) *PostsReconciler {
	return &PostsReconciler{
		gw:       gw,
		asm:      NewAssembler(gw),
		viewerID: viewerID,
		scope:    scope,
		col: reconcile.NewCollection[Post](func(a, b Post) bool {
			return a.CreatedAt.After(b.CreatedAt)
		}),
	}
}

// Load performs the initial fetch and assembly. Safe to call again as a
// full-refetch fallback.
func (r *PostsReconciler) Load(ctx context.Context) error {
	rows, err := r.gw.Query(ctx, "posts", gateway.Query{
		Filter:  r.scope,
		OrderBy: "created_at",
		Desc:    true,
	})
	if err != nil {
		return err
	}
	posts := r.asm.AssemblePosts(ctx, r.viewerID, rows)
	r.mu.Lock()
	r.col.Replace(posts)
	r.mu.Unlock()
	return nil
}

// Attach registers the change-feed listeners. Call Close on unmount or
// before re-attaching with a different scope.
func (r *PostsReconciler) Attach(ctx context.Context) error {
	posts, err := reconcile.Attach(r.gw, "posts", r.scope, func(ev gateway.Event) {
		r.applyPost(ctx, ev)
	})
	if err != nil {
		return err
	}
	// Like rows cannot be scoped to "posts currently in this collection",
	// so the subscription is table-wide and applyLike drops unknown posts.
	likes, err := reconcile.Attach(r.gw, "likes", gateway.Filter{}, func(ev gateway.Event) {
		r.applyLike(ctx, ev)
	})
	if err != nil {
		posts.Close()
		return err
	}
	comments, err := reconcile.Attach(r.gw, "comments", gateway.Filter{}, func(ev gateway.Event) {
		r.applyComment(ctx, ev)
	})
	if err != nil {
		posts.Close()
		likes.Close()
		return err
	}
	r.mu.Lock()
	r.posts = posts
	r.likes = likes
	r.comments = comments
	r.mu.Unlock()
	return nil
}

func (r *PostsReconciler) Close() {
	r.mu.Lock()
	posts, likes, comments := r.posts, r.likes, r.comments
	r.mu.Unlock()
	if posts != nil {
		posts.Close()
	}
	if likes != nil {
		likes.Close()
	}
	if comments != nil {
		comments.Close()
	}
}

// SetOpen records which post the viewer has open in a detail view, so its
// deletion can be surfaced instead of silently disappearing.
func (r *PostsReconciler) SetOpen(id string) {
	r.mu.Lock()
	r.openID = id
	r.mu.Unlock()
}

func (r *PostsReconciler) Posts() []Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.col.Items()
}

func (r *PostsReconciler) applyPost(ctx context.Context, ev gateway.Event) {
	switch ev.Action {
	case gateway.ActionInsert:
		// Assembly hits the gateway; re-check liveness before applying so a
		// detach during the fetch cannot mutate a dead collection.
		post := r.asm.AssemblePost(ctx, r.viewerID, ev.Row)
		r.mu.Lock()
		if r.posts != nil && !r.posts.Alive() {
			r.mu.Unlock()
			return
		}
		r.col.Upsert(post)
		r.mu.Unlock()
	case gateway.ActionUpdate:
		r.mu.Lock()
		r.col.Patch(ev.Row.String("id"), func(p *Post) {
			mergePostRow(p, ev.Row)
		})
		r.mu.Unlock()
	case gateway.ActionDelete:
		id := ev.Row.String("id")
		r.mu.Lock()
		open := id == r.openID
		r.col.Remove(id)
		r.mu.Unlock()
		if open {
			r.OpenDeleted.Trip()
		}
	}
}

func (r *PostsReconciler) applyLike(ctx context.Context, ev gateway.Event) {
	switch ev.Action {
	case gateway.ActionInsert:
		postID := ev.Row.String("post_id")
		liker := ev.Row.String("user_id")
		r.mu.Lock()
		r.col.Patch(postID, func(p *Post) {
			p.LikeCount++
			if liker == r.viewerID {
				p.IsLiked = true
			}
		})
		r.mu.Unlock()
	case gateway.ActionDelete:
		if postID := ev.Row.String("post_id"); postID != "" {
			liker := ev.Row.String("user_id")
			r.mu.Lock()
			r.col.Patch(postID, func(p *Post) {
				if p.LikeCount > 0 {
					p.LikeCount--
				}
				if liker != "" && liker == r.viewerID {
					p.IsLiked = false
				}
			})
			r.mu.Unlock()
			// A payload naming the post but not the liker leaves the
			// viewer-relative flag undecidable; recompute it from the backend
			// instead of clearing it for someone else's like.
			if liker == "" {
				r.refetchViewerLike(ctx, postID)
			}
			return
		}
		// Delete payload carries only the like's own key; which post lost a
		// like is unknowable from the delta, so refetch the derived counts.
		r.refetchLikeState(ctx)
	}
}

func (r *PostsReconciler) refetchViewerLike(ctx context.Context, postID string) {
	if r.viewerID == "" {
		return
	}
	liked := r.asm.fetchViewerLikes(ctx, r.viewerID, []string{postID})
	r.mu.Lock()
	if r.likes != nil && !r.likes.Alive() {
		r.mu.Unlock()
		return
	}
	r.col.Patch(postID, func(p *Post) {
		p.IsLiked = liked[postID]
	})
	r.mu.Unlock()
}

func (r *PostsReconciler) applyComment(ctx context.Context, ev gateway.Event) {
	switch ev.Action {
	case gateway.ActionInsert:
		r.mu.Lock()
		r.col.Patch(ev.Row.String("post_id"), func(p *Post) {
			p.CommentCount++
		})
		r.mu.Unlock()
	case gateway.ActionDelete:
		if postID := ev.Row.String("post_id"); postID != "" {
			r.mu.Lock()
			r.col.Patch(postID, func(p *Post) {
				if p.CommentCount > 0 {
					p.CommentCount--
				}
			})
			r.mu.Unlock()
			return
		}
		r.refetchCommentCounts(ctx)
	}
}

func (r *PostsReconciler) refetchCommentCounts(ctx context.Context) {
	r.mu.Lock()
	items := r.col.Items()
	r.mu.Unlock()
	ids := make([]string, len(items))
	for i, p := range items {
		ids[i] = p.ID
	}
	if len(ids) == 0 {
		return
	}
	counts := r.asm.fetchChildCounts(ctx, "comments", ids)
	r.mu.Lock()
	if r.comments != nil && !r.comments.Alive() {
		r.mu.Unlock()
		return
	}
	r.col.PatchAll(func(p *Post) {
		p.CommentCount = counts[p.ID]
	})
	r.mu.Unlock()
}

func (r *PostsReconciler) refetchLikeState(ctx context.Context) {
	r.mu.Lock()
	items := r.col.Items()
	r.mu.Unlock()
	ids := make([]string, len(items))
	for i, p := range items {
		ids[i] = p.ID
	}
	if len(ids) == 0 {
		return
	}
	counts := r.asm.fetchChildCounts(ctx, "likes", ids)
	liked := r.asm.fetchViewerLikes(ctx, r.viewerID, ids)
	r.mu.Lock()
	if r.likes != nil && !r.likes.Alive() {
		r.mu.Unlock()
		return
	}
	r.col.PatchAll(func(p *Post) {
		p.LikeCount = counts[p.ID]
		p.IsLiked = liked[p.ID]
	})
	r.mu.Unlock()
}

func mergePostRow(p *Post, row gateway.Row) {
	if _, ok := row["title"]; ok {
		p.Title = row.String("title")
	}
	if _, ok := row["body"]; ok {
		p.Body = row.String("body")
	}
}

// CommentsReconciler keeps the ascending comment thread of one post in
// sync, and watches the parent post so a concurrent deletion surfaces as a
// terminal state instead of a stuck screen.
type CommentsReconciler struct {
	gw     gateway.Gateway
	asm    *Assembler
	postID string

	mu  sync.Mutex
	col *reconcile.Collection[Comment]

	comments *reconcile.Handle
	parent   *reconcile.Handle

	ParentDeleted reconcile.Terminal
}

func NewCommentsReconciler(gw gateway.Gateway, postID string) *CommentsReconciler {
	return &CommentsReconciler{
		gw:     gw,
		asm:    NewAssembler(gw),
		postID: postID,
		col: reconcile.NewCollection[Comment](func(a, b Comment) bool {
			return a.CreatedAt.Before(b.CreatedAt)
		}),
	}
}

func (r *CommentsReconciler) Load(ctx context.Context) error {
	rows, err := r.gw.Query(ctx, "comments", gateway.Query{
		Filter:  gateway.Eq("post_id", r.postID),
		OrderBy: "created_at",
	})
	if err != nil {
		return err
	}
	comments := r.asm.AssembleComments(ctx, rows)
	r.mu.Lock()
	r.col.Replace(comments)
	r.mu.Unlock()
	return nil
}

func (r *CommentsReconciler) Attach(ctx context.Context) error {
	comments, err := reconcile.Attach(r.gw, "comments", gateway.Eq("post_id", r.postID), func(ev gateway.Event) {
		r.apply(ctx, ev)
	})
	if err != nil {
		return err
	}
	parent, err := reconcile.Attach(r.gw, "posts", gateway.Eq("id", r.postID), func(ev gateway.Event) {
		if ev.Action == gateway.ActionDelete && ev.Row.String("id") == r.postID {
			r.ParentDeleted.Trip()
		}
	})
	if err != nil {
		comments.Close()
		return err
	}
	r.mu.Lock()
	r.comments = comments
	r.parent = parent
	r.mu.Unlock()
	return nil
}

func (r *CommentsReconciler) Close() {
	r.mu.Lock()
	comments, parent := r.comments, r.parent
	r.mu.Unlock()
	if comments != nil {
		comments.Close()
	}
	if parent != nil {
		parent.Close()
	}
}

func (r *CommentsReconciler) Comments() []Comment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.col.Items()
}

func (r *CommentsReconciler) apply(ctx context.Context, ev gateway.Event) {
	switch ev.Action {
	case gateway.ActionInsert:
		comment := commentFromRow(ev.Row)
		if authors := r.asm.fetchAuthors(ctx, []string{comment.Author.ID}); authors != nil {
			if author, ok := authors[comment.Author.ID]; ok {
				comment.Author = author
			} else {
				log.Printf("feed: no profile for comment author %s", comment.Author.ID)
			}
		}
		r.mu.Lock()
		if r.comments != nil && !r.comments.Alive() {
			r.mu.Unlock()
			return
		}
		r.col.Upsert(comment)
		r.mu.Unlock()
	case gateway.ActionUpdate:
		r.mu.Lock()
		r.col.Patch(ev.Row.String("id"), func(c *Comment) {
			if _, ok := ev.Row["body"]; ok {
				c.Body = ev.Row.String("body")
			}
		})
		r.mu.Unlock()
	case gateway.ActionDelete:
		r.mu.Lock()
		r.col.Remove(ev.Row.String("id"))
		r.mu.Unlock()
	}
}
