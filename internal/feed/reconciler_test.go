package feed

import (
	"context"
	"testing"
	"time"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

func TestPostsReconcilerInsertOrdering(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()

	r := NewPostsReconciler(gw, "viewer", gateway.Filter{})
	if err := r.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := r.Attach(ctx); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer r.Close()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	// Delivery order B then A; position must come from timestamps.
	if _, err := gw.Insert(ctx, "posts", gateway.Row{"id": "B", "title": "b", "author_id": "u", "created_at": base.Add(time.Minute)}); err != nil {
		t.Fatalf("insert B: %v", err)
	}
	if _, err := gw.Insert(ctx, "posts", gateway.Row{"id": "A", "title": "a", "author_id": "u", "created_at": base}); err != nil {
		t.Fatalf("insert A: %v", err)
	}

	posts := r.Posts()
	if len(posts) != 2 || posts[0].ID != "B" || posts[1].ID != "A" {
		t.Fatalf("expected [B A], got %+v", posts)
	}

	// Replaying an insert must not duplicate.
	r.applyPost(ctx, gateway.Event{Action: gateway.ActionInsert, Table: "posts", Row: gateway.Row{"id": "A", "title": "a", "author_id": "u", "created_at": base}})
	if len(r.Posts()) != 2 {
		t.Fatalf("duplicate insert applied")
	}
}

func TestPostsReconcilerDeleteIdempotent(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()

	r := NewPostsReconciler(gw, "viewer", gateway.Filter{})
	if err := r.Attach(ctx); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer r.Close()

	if _, err := gw.Insert(ctx, "posts", gateway.Row{"id": "P", "title": "p", "author_id": "u"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	del := gateway.Event{Action: gateway.ActionDelete, Table: "posts", Row: gateway.Row{"id": "P"}}
	r.applyPost(ctx, del)
	if len(r.Posts()) != 0 {
		t.Fatalf("expected empty collection")
	}
	r.applyPost(ctx, del)
	if len(r.Posts()) != 0 {
		t.Fatalf("replayed delete must be a no-op")
	}
}

func TestPostsReconcilerLikeCounts(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()
	if _, err := gw.Insert(ctx, "posts", gateway.Row{"id": "P", "title": "p", "author_id": "u"}); err != nil {
		t.Fatalf("insert post: %v", err)
	}

	r := NewPostsReconciler(gw, "viewer", gateway.Filter{})
	if err := r.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := r.Attach(ctx); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer r.Close()

	likeCount := func() int {
		posts := r.Posts()
		if len(posts) != 1 {
			t.Fatalf("expected one post")
		}
		return posts[0].LikeCount
	}

	var likeIDs []string
	for _, user := range []string{"u1", "u2", "viewer"} {
		row, err := gw.Insert(ctx, "likes", gateway.Row{"post_id": "P", "user_id": user})
		if err != nil {
			t.Fatalf("insert like: %v", err)
		}
		likeIDs = append(likeIDs, row.String("id"))
		if likeCount() < 0 {
			t.Fatalf("negative like count")
		}
	}
	if likeCount() != 3 {
		t.Fatalf("expected 3 likes, got %d", likeCount())
	}
	if !r.Posts()[0].IsLiked {
		t.Fatalf("viewer like not reflected")
	}

	// Like deletes arrive with the key only; the reconciler must fall back
	// to refetching the derived counts.
	for _, id := range likeIDs[:2] {
		if _, err := gw.Delete(ctx, "likes", gateway.Eq("id", id)); err != nil {
			t.Fatalf("delete like: %v", err)
		}
		if likeCount() < 0 {
			t.Fatalf("negative like count")
		}
	}
	if likeCount() != 1 {
		t.Fatalf("expected 1 like, got %d", likeCount())
	}
	if !r.Posts()[0].IsLiked {
		t.Fatalf("viewer like should survive other deletions")
	}

	if _, err := gw.Delete(ctx, "likes", gateway.Eq("id", likeIDs[2])); err != nil {
		t.Fatalf("delete viewer like: %v", err)
	}
	if likeCount() != 0 || r.Posts()[0].IsLiked {
		t.Fatalf("expected unliked post with 0 likes")
	}
}

func TestPostsReconcilerUpdateMergesInPlace(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()
	if _, err := gw.Insert(ctx, "posts", gateway.Row{"id": "P", "title": "old", "author_id": "u"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := gw.Insert(ctx, "likes", gateway.Row{"post_id": "P", "user_id": "u1"}); err != nil {
		t.Fatalf("like: %v", err)
	}

	r := NewPostsReconciler(gw, "viewer", gateway.Filter{})
	if err := r.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := r.Attach(ctx); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer r.Close()

	if _, err := gw.Update(ctx, "posts", gateway.Eq("id", "P"), gateway.Row{"title": "new"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	post := r.Posts()[0]
	if post.Title != "new" {
		t.Fatalf("update not merged")
	}
	if post.LikeCount != 1 {
		t.Fatalf("derived count lost on update")
	}
}

func TestPostsReconcilerOpenDetailDeleted(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()
	if _, err := gw.Insert(ctx, "posts", gateway.Row{"id": "P", "title": "p", "author_id": "u"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	r := NewPostsReconciler(gw, "viewer", gateway.Filter{})
	if err := r.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := r.Attach(ctx); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer r.Close()

	r.SetOpen("P")
	if _, err := gw.Delete(ctx, "posts", gateway.Eq("id", "P")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !r.OpenDeleted.Done() {
		t.Fatalf("expected open-post deletion to trip the terminal state")
	}
}

func TestCommentsReconcilerScope(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()

	r := NewCommentsReconciler(gw, "P")
	if err := r.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := r.Attach(ctx); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer r.Close()

	if _, err := gw.Insert(ctx, "comments", gateway.Row{"id": "c1", "post_id": "P", "author_id": "u", "body": "mine"}); err != nil {
		t.Fatalf("insert c1: %v", err)
	}
	if _, err := gw.Insert(ctx, "comments", gateway.Row{"id": "c2", "post_id": "Q", "author_id": "u", "body": "other"}); err != nil {
		t.Fatalf("insert c2: %v", err)
	}

	comments := r.Comments()
	if len(comments) != 1 || comments[0].ID != "c1" {
		t.Fatalf("expected [c1], got %+v", comments)
	}
}

func TestCommentsReconcilerParentDeletedOnce(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()
	if _, err := gw.Insert(ctx, "posts", gateway.Row{"id": "P", "title": "p", "author_id": "u"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	r := NewCommentsReconciler(gw, "P")
	if err := r.Attach(ctx); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer r.Close()

	if _, err := gw.Delete(ctx, "posts", gateway.Eq("id", "P")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !r.ParentDeleted.Done() {
		t.Fatalf("expected parent-deleted state")
	}
	if r.ParentDeleted.Trip() {
		t.Fatalf("terminal state must surface exactly one notice")
	}
}

func TestCommentsReconcilerOrdering(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()

	r := NewCommentsReconciler(gw, "P")
	if err := r.Attach(ctx); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer r.Close()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	// Newest delivered first; ascending thread order must win.
	if _, err := gw.Insert(ctx, "comments", gateway.Row{"id": "c2", "post_id": "P", "author_id": "u", "body": "two", "created_at": base.Add(time.Minute)}); err != nil {
		t.Fatalf("insert c2: %v", err)
	}
	if _, err := gw.Insert(ctx, "comments", gateway.Row{"id": "c1", "post_id": "P", "author_id": "u", "body": "one", "created_at": base}); err != nil {
		t.Fatalf("insert c1: %v", err)
	}

	comments := r.Comments()
	if len(comments) != 2 || comments[0].ID != "c1" || comments[1].ID != "c2" {
		t.Fatalf("expected ascending order, got %+v", comments)
	}
}

func TestReconcilerClosedDropsEvents(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()

	r := NewPostsReconciler(gw, "viewer", gateway.Filter{})
	if err := r.Attach(ctx); err != nil {
		t.Fatalf("attach: %v", err)
	}
	r.Close()

	if _, err := gw.Insert(ctx, "posts", gateway.Row{"id": "P", "title": "p", "author_id": "u"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(r.Posts()) != 0 {
		t.Fatalf("closed reconciler must not apply events")
	}
	r.Close() // idempotent
}

func TestPostsReconcilerCommentCounts(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()
	if _, err := gw.Insert(ctx, "posts", gateway.Row{"id": "P", "title": "p", "author_id": "u"}); err != nil {
		t.Fatalf("insert post: %v", err)
	}

	r := NewPostsReconciler(gw, "viewer", gateway.Filter{})
	if err := r.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := r.Attach(ctx); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer r.Close()

	commentCount := func() int {
		posts := r.Posts()
		if len(posts) != 1 {
			t.Fatalf("expected one post")
		}
		return posts[0].CommentCount
	}

	first, err := gw.Insert(ctx, "comments", gateway.Row{"post_id": "P", "author_id": "u1", "body": "one"})
	if err != nil {
		t.Fatalf("insert comment: %v", err)
	}
	if _, err := gw.Insert(ctx, "comments", gateway.Row{"post_id": "P", "author_id": "u2", "body": "two"}); err != nil {
		t.Fatalf("insert comment: %v", err)
	}
	if commentCount() != 2 {
		t.Fatalf("expected 2 comments, got %d", commentCount())
	}

	// Comment deletes arrive key-only; the count comes back via refetch.
	if _, err := gw.Delete(ctx, "comments", gateway.Eq("id", first.String("id"))); err != nil {
		t.Fatalf("delete comment: %v", err)
	}
	if commentCount() != 1 {
		t.Fatalf("expected 1 comment after delete, got %d", commentCount())
	}

	// A comment on an unknown post is dropped.
	r.applyComment(ctx, gateway.Event{Action: gateway.ActionInsert, Table: "comments", Row: gateway.Row{"post_id": "other"}})
	if commentCount() != 1 {
		t.Fatalf("foreign comment changed count")
	}
}

func TestPostsReconcilerLikeDeltaDeletes(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()
	if _, err := gw.Insert(ctx, "posts", gateway.Row{"id": "P", "title": "p", "author_id": "u"}); err != nil {
		t.Fatalf("insert post: %v", err)
	}
	likeIDs := map[string]string{}
	for _, user := range []string{"viewer", "u1", "u2"} {
		row, err := gw.Insert(ctx, "likes", gateway.Row{"post_id": "P", "user_id": user})
		if err != nil {
			t.Fatalf("insert like: %v", err)
		}
		likeIDs[user] = row.String("id")
	}

	r := NewPostsReconciler(gw, "viewer", gateway.Filter{})
	if err := r.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	post := func() Post {
		posts := r.Posts()
		if len(posts) != 1 {
			t.Fatalf("expected one post")
		}
		return posts[0]
	}
	if p := post(); p.LikeCount != 3 || !p.IsLiked {
		t.Fatalf("seed state wrong: %+v", p)
	}

	// A full delta for another user's like adjusts the count in place and
	// leaves the viewer's own flag alone.
	if _, err := gw.Delete(ctx, "likes", gateway.Eq("id", likeIDs["u1"])); err != nil {
		t.Fatalf("delete like: %v", err)
	}
	r.applyLike(ctx, gateway.Event{Action: gateway.ActionDelete, Table: "likes",
		Row: gateway.Row{"id": likeIDs["u1"], "post_id": "P", "user_id": "u1"}})
	if p := post(); p.LikeCount != 2 || !p.IsLiked {
		t.Fatalf("another user's like delete mishandled: %+v", p)
	}

	// A delta naming the post but not the liker recomputes the viewer flag
	// from the backend; the viewer's row is still there.
	if _, err := gw.Delete(ctx, "likes", gateway.Eq("id", likeIDs["u2"])); err != nil {
		t.Fatalf("delete like: %v", err)
	}
	r.applyLike(ctx, gateway.Event{Action: gateway.ActionDelete, Table: "likes",
		Row: gateway.Row{"id": likeIDs["u2"], "post_id": "P"}})
	if p := post(); p.LikeCount != 1 || !p.IsLiked {
		t.Fatalf("anonymous like delete mishandled: %+v", p)
	}

	// The viewer's own delta clears the flag.
	if _, err := gw.Delete(ctx, "likes", gateway.Eq("id", likeIDs["viewer"])); err != nil {
		t.Fatalf("delete like: %v", err)
	}
	own := gateway.Event{Action: gateway.ActionDelete, Table: "likes",
		Row: gateway.Row{"id": likeIDs["viewer"], "post_id": "P", "user_id": "viewer"}}
	r.applyLike(ctx, own)
	if p := post(); p.LikeCount != 0 || p.IsLiked {
		t.Fatalf("viewer like delete mishandled: %+v", p)
	}

	// Replaying the delta never drives the count negative.
	r.applyLike(ctx, own)
	if p := post(); p.LikeCount != 0 {
		t.Fatalf("like count went negative: %+v", p)
	}
}

func TestPostsReconcilerCommentDeltaDeletes(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()
	if _, err := gw.Insert(ctx, "posts", gateway.Row{"id": "P", "title": "p", "author_id": "u"}); err != nil {
		t.Fatalf("insert post: %v", err)
	}
	row, err := gw.Insert(ctx, "comments", gateway.Row{"post_id": "P", "author_id": "u1", "body": "one"})
	if err != nil {
		t.Fatalf("insert comment: %v", err)
	}

	r := NewPostsReconciler(gw, "viewer", gateway.Filter{})
	if err := r.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	commentCount := func() int {
		posts := r.Posts()
		if len(posts) != 1 {
			t.Fatalf("expected one post")
		}
		return posts[0].CommentCount
	}
	if commentCount() != 1 {
		t.Fatalf("expected 1 comment, got %d", commentCount())
	}

	// A delta carrying the parent id decrements in place, no refetch.
	del := gateway.Event{Action: gateway.ActionDelete, Table: "comments",
		Row: gateway.Row{"id": row.String("id"), "post_id": "P"}}
	r.applyComment(ctx, del)
	if commentCount() != 0 {
		t.Fatalf("expected 0 comments, got %d", commentCount())
	}
	r.applyComment(ctx, del)
	if commentCount() != 0 {
		t.Fatalf("comment count went negative: %d", commentCount())
	}
}
