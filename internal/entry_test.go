package internal

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// The stdio loop must tear down sibling goroutines (the watcher) even
// when serve exits cleanly, since the errgroup only cancels on error.
func TestRunStdio_CleanExitStopsGroup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gCtx.Done()
		return nil
	})

	done := make(chan error, 1)
	go func() {
		done <- runStdio(cancel, g, func() error { return nil }, slog.New(slog.DiscardHandler))
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runStdio: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runStdio did not return after clean serve exit")
	}
}

func TestRunStdio_ServeErrorPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gCtx.Done()
		return nil
	})

	serveErr := errors.New("stdio broken")
	err := runStdio(cancel, g, func() error { return serveErr }, slog.New(slog.DiscardHandler))
	if err == nil || !errors.Is(err, serveErr) {
		t.Fatalf("err = %v, want wrapped serve error", err)
	}
}
