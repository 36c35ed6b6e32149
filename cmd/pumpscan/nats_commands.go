package main

import (
	"context"
	"fmt"
	"time"

	natspkg "github.com/brojonat/pumpscan/service/nats"
	"github.com/urfave/cli/v2"
)

func natsWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Print a wallet's scan progress straight from NATS",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "follow",
				Usage: "Keep watching after a scan completes",
			},
		},
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}

			sub, err := natspkg.NewSubscriber(c.String("nats-url"), cliLogger(c))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer sub.Close()

			ctx, stop := signalContext(c.Context)
			defer stop()

			if !c.Bool("json") {
				fmt.Fprintf(c.App.ErrWriter, "📡 Watching %s on %s (Ctrl-C to exit)\n\n", natspkg.WalletSubjects(address), c.String("nats-url"))
			}

			return watchNATS(ctx, sub, address, &eventPrinter{
				w:          c.App.Writer,
				jsonOutput: c.Bool("json"),
				follow:     c.Bool("follow"),
				since:      time.Now(),
			})
		},
	}
}

// watchNATS prints the wallet's events until the printer is done or ctx ends.
func watchNATS(ctx context.Context, sub natspkg.Subscriber, wallet string, p *eventPrinter) error {
	msgs, err := sub.Subscribe(ctx, wallet)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			done, err := p.handle(msg.Kind, msg.Data)
			if err != nil {
				fmt.Fprintf(p.w, "Error handling event: %v\n", err)
				continue
			}
			if done {
				return nil
			}
		}
	}
}
