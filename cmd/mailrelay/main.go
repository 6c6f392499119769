package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/strogmv/mailrelay/internal/app"
	"github.com/strogmv/mailrelay/internal/config"
	"github.com/strogmv/mailrelay/internal/pkg/logger"
	"github.com/strogmv/mailrelay/internal/pkg/telemetry"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	cmd := os.Args[1]

	var err error
	switch cmd {
	case "serve":
		err = runServe()
	case "relay":
		err = runRelay()
	case "consumer":
		err = runConsumer()
	case "all":
		err = runAll()
	case "migrate":
		err = runMigrate()
	case "dlq":
		err = runDLQ(os.Args[2:])
	case "version":
		fmt.Printf("mailrelay %s\n", Version)
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("mailrelay %s: transactional confirmation mail delivery\n", Version)
	fmt.Println("\nUsage:")
	fmt.Println("  mailrelay serve        Run the registration HTTP API")
	fmt.Println("  mailrelay relay        Publish pending outbox records to the stream")
	fmt.Println("  mailrelay consumer     Deliver confirmation mail from the stream")
	fmt.Println("  mailrelay all          Run API, relay and consumer in one process")
	fmt.Println("  mailrelay migrate      Apply the Postgres schema")
	fmt.Println("  mailrelay dlq list [-n N]        Print dead-letter entries")
	fmt.Println("  mailrelay dlq replay <message_id> Re-publish a dead-lettered message")
	fmt.Println("  mailrelay dlq archive            Upload dead letters to S3")
	fmt.Println("  mailrelay version      Print the version")
	fmt.Println("\nConfiguration is read from the environment, or from the file named by MAILRELAY_CONFIG.")
}

// bootstrap loads config, installs logging and tracing, and opens the
// container. The returned cleanup flushes traces and closes connections.
func bootstrap(ctx context.Context) (*app.Container, func(), error) {
	cfg, err := config.Load(os.Getenv("MAILRELAY_CONFIG"))
	if err != nil {
		return nil, nil, err
	}
	logger.Init(cfg.LogLevel)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return nil, nil, err
	}
	c, err := app.NewContainer(ctx, cfg)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return nil, nil, err
	}
	cleanup := func() {
		c.Close()
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("tracer shutdown", "error", err)
		}
	}
	return c, cleanup, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
