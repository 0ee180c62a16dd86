package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vowels52/SyncUp-sub000/internal/config"
	"github.com/vowels52/SyncUp-sub000/internal/devserver"
	"github.com/vowels52/SyncUp-sub000/internal/gateway"
)

var mainRunner = realMain

func main() {
	mainRunner()
}

func realMain() {
	cfg := config.Load()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := Run(context.Background(), cfg, signals, nil); err != nil {
		log.Printf("devserver exited with error: %v", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

// Run starts the development backend and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, signals <-chan os.Signal, listen ListenFunc) error {
	srv := devserver.NewServer(cfg, gateway.NewMemory())

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.App.ShutdownWithContext(shutdownCtx)
}
