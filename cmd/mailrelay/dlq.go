package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/strogmv/mailrelay/internal/adapter/repository/postgres"
	"github.com/strogmv/mailrelay/internal/app"
)

func migrateDB(ctx context.Context, c *app.Container) error {
	return postgres.Migrate(ctx, c.DB)
}

func runDLQ(args []string) error {
	if len(args) == 0 {
		fmt.Println("Usage: mailrelay dlq <list|replay|archive>")
		os.Exit(1)
	}

	ctx, stop := signalContext()
	defer stop()
	c, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := c.ConnectNATS(ctx, "mailrelay-dlq"); err != nil {
		return err
	}
	ops, err := c.DeadLetterOps(ctx)
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("dlq list", flag.ExitOnError)
		limit := fs.Int("n", 50, "maximum entries to print (0 for all)")
		asJSON := fs.Bool("json", false, "print entries as JSON lines")
		_ = fs.Parse(args[1:])

		entries, err := ops.List(ctx, *limit)
		if err != nil {
			return err
		}
		if *asJSON {
			enc := json.NewEncoder(os.Stdout)
			for _, e := range entries {
				if err := enc.Encode(e.Letter); err != nil {
					return err
				}
			}
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tMESSAGE_ID\tTYPE\tATTEMPTS\tTIMESTAMP\tERROR")
		for _, e := range entries {
			l := e.Letter
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", e.Sequence, l.MessageID, l.FailureType, l.Attempts, l.Timestamp.Format(time.RFC3339), l.Error)
		}
		return tw.Flush()
	case "replay":
		if len(args) < 2 {
			fmt.Println("Usage: mailrelay dlq replay <message_id>")
			os.Exit(1)
		}
		res, err := ops.Replay(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("replayed %s to %s seq %d\n", args[1], res.Stream, res.Sequence)
		return nil
	case "archive":
		loc, n, err := ops.Archive(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("archived %d dead letters to %s\n", n, loc)
		return nil
	default:
		fmt.Printf("Unknown dlq command: %s\n", args[0])
		os.Exit(1)
	}
	return nil
}
