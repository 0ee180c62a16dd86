package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vowels52/SyncUp-sub000/internal/config"
	"github.com/vowels52/SyncUp-sub000/internal/feed"
	"github.com/vowels52/SyncUp-sub000/internal/gateway"
	"github.com/vowels52/SyncUp-sub000/internal/session"
)

var mainRunner = realMain

func main() {
	mainRunner()
}

func realMain() {
	cfg := config.Load()

	pool, err := gateway.ConnectPostgres(cfg.PostgresURL)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()
	rdb := gateway.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword)
	if rdb != nil {
		defer rdb.Close()
	}
	var gw gateway.Gateway = gateway.NewPostgres(pool, rdb)
	// Without redis the change feed comes over the realtime websocket.
	if rdb == nil && cfg.RealtimeURL != "" {
		gw = gateway.WithRealtime(gw, gateway.NewRealtime(cfg.RealtimeURL))
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := Run(context.Background(), cfg, gw, os.Getenv("SYNCUP_TOKEN"), signals); err != nil {
		log.Printf("syncup exited with error: %v", err)
	}
}

// Run loads the feed for the token's viewer and tails it until a signal
// arrives. It is the smoke harness for the client stack: assembler,
// reconciler and change feed wired end to end.
func Run(ctx context.Context, cfg config.Config, gw gateway.Gateway, token string, signals <-chan os.Signal) error {
	viewerID := ""
	if token != "" {
		s, err := session.Parse(cfg.JWTSecret, token)
		if err != nil {
			return err
		}
		viewerID = s.UserID
		log.Printf("signed in as %s", viewerID)
	} else {
		log.Printf("no token, browsing signed out")
	}

	r := feed.NewPostsReconciler(gw, viewerID, gateway.Filter{})
	loadCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	err := r.Load(loadCtx)
	cancel()
	if err != nil {
		return err
	}
	if err := r.Attach(ctx); err != nil {
		return err
	}
	defer r.Close()

	for _, p := range r.Posts() {
		log.Printf("post %s by %s: %s (%d likes, %d comments)",
			p.ID, p.Author.DisplayName, p.Title, p.LikeCount, p.CommentCount)
	}
	log.Printf("tailing feed, ctrl-c to stop")

	select {
	case <-signals:
	case <-ctx.Done():
	}
	return nil
}
