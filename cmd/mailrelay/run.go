package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/strogmv/mailrelay/internal/app"
)

const shutdownTimeout = 15 * time.Second

func runServe() error {
	ctx, stop := signalContext()
	defer stop()
	c, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return serveHTTP(ctx, c)
}

func runRelay() error {
	ctx, stop := signalContext()
	defer stop()
	c, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := c.ConnectNATS(ctx, "mailrelay-relay"); err != nil {
		return err
	}
	return c.Relay().Run(ctx)
}

func runConsumer() error {
	ctx, stop := signalContext()
	defer stop()
	c, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := c.ConnectNATS(ctx, "mailrelay-consumer"); err != nil {
		return err
	}
	return c.StreamConsumer().Run(ctx, c.DeliveryConsumer())
}

// runAll is the only mode that works with the memory store, since every
// component shares the process.
func runAll() error {
	ctx, stop := signalContext()
	defer stop()
	c, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := c.ConnectNATS(ctx, "mailrelay"); err != nil {
		return err
	}

	errc := make(chan error, 3)
	go func() { errc <- c.Relay().Run(ctx) }()
	go func() { errc <- c.StreamConsumer().Run(ctx, c.DeliveryConsumer()) }()
	go func() { errc <- serveHTTP(ctx, c) }()

	var errs []error
	for range 3 {
		if err := <-errc; err != nil {
			errs = append(errs, err)
			stop()
		}
	}
	return errors.Join(errs...)
}

func serveHTTP(ctx context.Context, c *app.Container) error {
	srv := c.HTTPServer()
	errc := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func runMigrate() error {
	ctx, stop := signalContext()
	defer stop()
	c, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	if c.DB == nil {
		return errors.New("migrate requires STORE_DRIVER=postgres")
	}
	return migrateDB(ctx, c)
}
