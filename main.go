package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"storechat/internal/auth"
	"storechat/internal/bus"
	"storechat/internal/chat"
	"storechat/internal/config"
	"storechat/internal/realtime"
	"storechat/internal/rest"
	"storechat/internal/storage"
	"storechat/internal/surface"
)

func run(ctx context.Context) error {
	viewerID := flag.String("viewer", "", "Viewer user id (as known to the backend)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	creds := auth.NewCredentials(cfg.Token)
	api := rest.NewClient(cfg.APIBaseURL, creds, cfg.RequestTimeout)

	var snapshot chat.Snapshotter
	if cfg.SnapshotFile != "" {
		store, err := storage.NewSnapshotStore(cfg.SnapshotFile)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		snapshot = store
	}

	channel := realtime.NewChannel(realtime.NewWebsocketTransport(cfg.WSURL, creds), creds)
	if err := channel.Connect(ctx); err != nil {
		if errors.Is(err, realtime.ErrNoCredentials) {
			slog.Warn("no valid credentials, running without realtime session")
		} else {
			return err
		}
	}

	sharedBus := bus.New()
	deps := surface.Deps{
		ViewerID:       *viewerID,
		Bus:            sharedBus,
		API:            api,
		Channel:        channel,
		Snapshot:       snapshot,
		PendingTimeout: cfg.PendingTimeout,
		TypingTTL:      cfg.TypingTTL,
	}

	pageDeps := deps
	pageDeps.OnBadge = func(total int) {
		slog.Info("badge updated", "surface", "messaging-page", "total", total)
	}
	page := surface.NewMessagingPage(pageDeps)

	bubbleDeps := deps
	bubbleDeps.OnBadge = func(total int) {
		slog.Info("badge updated", "surface", "chat-bubble", "total", total)
	}
	bubble := surface.NewChatBubbleWidget(bubbleDeps)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return page.Mount(gCtx)
	})
	g.Go(func() error {
		return bubble.Mount(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down...")
		page.Unmount()
		bubble.Unmount()
		_ = channel.Disconnect()
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
