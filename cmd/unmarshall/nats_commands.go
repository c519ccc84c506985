package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/unmarshall/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams transaction events published by the sync worker.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Stream new transactions for a wallet as they are synced",
		ArgsUsage: "WALLET_ADDRESS",
		Description: `Subscribe to transaction events published to NATS JetStream.

Events are published to the subject: unmarshall.txns.{chain}.{wallet_address}

Example:
  unmarshall nats subscribe -c eth 0x742d35Cc6634C0532925a3b844Bc454e4438f44e --json`,
		Flags: []cli.Flag{
			currencyFlag(),
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Durable consumer name; omit for an ephemeral consumer",
			},
		},
		Action: func(c *cli.Context) error {
			currency, address, err := walletArgs(c)
			if err != nil {
				return err
			}
			event := natspkg.TransactionEvent{Chain: currency.ChainName(), WalletAddress: address}
			return streamTransactions(c, event.Subject())
		},
	}
}

func streamTransactions(c *cli.Context, subject string) error {
	natsURL := c.String("nats-url")
	jsonOutput := c.Bool("json")
	w := c.App.Writer

	nc, err := nats.Connect(natsURL, nats.Name("unmarshall-cli"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if name := c.String("consumer-name"); name != "" {
		consumerConfig.Durable = name
		consumerConfig.Name = name
	}

	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if !jsonOutput {
		fmt.Fprintf(c.App.ErrWriter, "Subscribing to %s on %s (Ctrl-C to exit)\n\n", subject, natsURL)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	msgChan := make(chan jetstream.Msg, 10)
	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer consumeCtx.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.TransactionEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "Error parsing event: %v\n", err)
				_ = msg.Ack()
				continue
			}
			count++

			if jsonOutput {
				data, _ := json.Marshal(event)
				fmt.Fprintln(w, string(data))
			} else {
				block := "-"
				if event.BlockNumber != nil {
					block = fmt.Sprint(*event.BlockNumber)
				}
				fmt.Fprintf(w, "#%d %s block=%s status=%s published=%s\n",
					count, event.Hash, block, event.Status, event.PublishedAt.Format(time.RFC3339))
			}
			_ = msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "\nReceived %d transactions\n", count)
			}
			return nil
		}
	}
}
