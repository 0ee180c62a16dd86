package feed

import (
	"context"
	"log"
	"sync"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

// Assembler merges primary post rows with their related rows (authors,
// tags, aggregate counts, the viewer's own likes) into view-models. Every
// secondary lookup is one batched IN-query, so the number of round trips
// stays constant regardless of how many posts are assembled.
type Assembler struct {
	gw gateway.Gateway
}

func NewAssembler(gw gateway.Gateway) *Assembler {
	return &Assembler{gw: gw}
}

// AssemblePosts returns one view-model per input row, in input order. A
// failing secondary fetch degrades that facet to defaults and is logged;
// it never discards the primary result.
func (a *Assembler) AssemblePosts(ctx context.Context, viewerID string, rows []gateway.Row) []Post {
	posts := make([]Post, len(rows))
	postIDs := make([]string, 0, len(rows))
	authorIDs := make([]string, 0, len(rows))
	for i, row := range rows {
		posts[i] = postFromRow(row)
		postIDs = append(postIDs, posts[i].ID)
		authorIDs = append(authorIDs, posts[i].Author.ID)
	}
	if len(posts) == 0 {
		return posts
	}

	var (
		authors       map[string]Author
		tags          map[string][]string
		likeCounts    map[string]int
		commentCounts map[string]int
		viewerLiked   map[string]bool
	)

	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		authors = a.fetchAuthors(ctx, authorIDs)
	}()
	go func() {
		defer wg.Done()
		tags = a.fetchTags(ctx, postIDs)
	}()
	go func() {
		defer wg.Done()
		likeCounts = a.fetchChildCounts(ctx, "likes", postIDs)
	}()
	go func() {
		defer wg.Done()
		commentCounts = a.fetchChildCounts(ctx, "comments", postIDs)
	}()
	go func() {
		defer wg.Done()
		viewerLiked = a.fetchViewerLikes(ctx, viewerID, postIDs)
	}()
	wg.Wait()

	for i := range posts {
		if author, ok := authors[posts[i].Author.ID]; ok {
			posts[i].Author = author
		}
		posts[i].Tags = tags[posts[i].ID]
		posts[i].LikeCount = likeCounts[posts[i].ID]
		posts[i].CommentCount = commentCounts[posts[i].ID]
		posts[i].IsLiked = viewerLiked[posts[i].ID]
	}
	return posts
}

// AssemblePost enriches a single post row, used when a reconciler receives
// an insert notification and needs the denormalized fields.
func (a *Assembler) AssemblePost(ctx context.Context, viewerID string, row gateway.Row) Post {
	return a.AssemblePosts(ctx, viewerID, []gateway.Row{row})[0]
}

// AssembleComments enriches comment rows with author profiles, preserving
// input order.
func (a *Assembler) AssembleComments(ctx context.Context, rows []gateway.Row) []Comment {
	comments := make([]Comment, len(rows))
	authorIDs := make([]string, 0, len(rows))
	for i, row := range rows {
		comments[i] = commentFromRow(row)
		authorIDs = append(authorIDs, comments[i].Author.ID)
	}
	if len(comments) == 0 {
		return comments
	}
	authors := a.fetchAuthors(ctx, authorIDs)
	for i := range comments {
		if author, ok := authors[comments[i].Author.ID]; ok {
			comments[i].Author = author
		}
	}
	return comments
}

func (a *Assembler) fetchAuthors(ctx context.Context, ids []string) map[string]Author {
	rows, err := a.gw.Query(ctx, "profiles", gateway.Query{Filter: gateway.In("id", ids)})
	if err != nil {
		log.Printf("feed: author lookup degraded: %v", err)
		return nil
	}
	authors := make(map[string]Author, len(rows))
	for _, row := range rows {
		author := authorFromRow(row)
		authors[author.ID] = author
	}
	return authors
}

func (a *Assembler) fetchTags(ctx context.Context, postIDs []string) map[string][]string {
	rows, err := a.gw.Query(ctx, "post_tags", gateway.Query{
		Filter:  gateway.In("post_id", postIDs),
		OrderBy: "tag",
	})
	if err != nil {
		log.Printf("feed: tag lookup degraded: %v", err)
		return nil
	}
	tags := map[string][]string{}
	for _, row := range rows {
		tags[row.String("post_id")] = append(tags[row.String("post_id")], row.String("tag"))
	}
	return tags
}

func (a *Assembler) fetchChildCounts(ctx context.Context, table string, postIDs []string) map[string]int {
	rows, err := a.gw.Query(ctx, table, gateway.Query{
		Select: []string{"post_id"},
		Filter: gateway.In("post_id", postIDs),
	})
	if err != nil {
		log.Printf("feed: %s count lookup degraded: %v", table, err)
		return nil
	}
	counts := map[string]int{}
	for _, row := range rows {
		counts[row.String("post_id")]++
	}
	return counts
}

// fetchViewerLikes is the viewer-relative second query: same id list,
// additionally scoped by the viewer, joined client-side.
func (a *Assembler) fetchViewerLikes(ctx context.Context, viewerID string, postIDs []string) map[string]bool {
	if viewerID == "" {
		return nil
	}
	rows, err := a.gw.Query(ctx, "likes", gateway.Query{
		Select: []string{"post_id"},
		Filter: gateway.In("post_id", postIDs).And("user_id", gateway.OpEq, viewerID),
	})
	if err != nil {
		log.Printf("feed: viewer like lookup degraded: %v", err)
		return nil
	}
	liked := map[string]bool{}
	for _, row := range rows {
		liked[row.String("post_id")] = true
	}
	return liked
}
