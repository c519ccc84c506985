package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/brojonat/unmarshall/client"
	"github.com/brojonat/unmarshall/service/db"
	"github.com/brojonat/unmarshall/service/temporal"
	"github.com/urfave/cli/v2"
)

func syncFlags() []cli.Flag {
	return []cli.Flag{
		currencyFlag(),
		&cli.IntFlag{
			Name:    "depth",
			Aliases: []string{"d"},
			Usage:   "Maximum number of transaction pages per sync",
			EnvVars: []string{"SYNC_DEPTH"},
			Value:   4,
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"l"},
			Usage:   "Transactions per page",
			EnvVars: []string{"SYNC_PAGE_SIZE"},
			Value:   client.DefaultPageSize,
		},
		&cli.BoolFlag{
			Name:  "skip-balances",
			Usage: "Do not take a balance snapshot",
		},
	}
}

func walletSyncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Run one sync for a wallet and wait for the result",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: append(syncFlags(), &cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "How long to wait for the sync to finish",
			Value:   5 * time.Minute,
		}),
		Action: func(c *cli.Context) error {
			input, err := syncInput(c)
			if err != nil {
				return err
			}
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			result, err := tc.SyncWallet(ctx, input)
			if err != nil {
				return err
			}

			return writeOutput(c, result, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Synced %s wallet %s\n", result.Chain, result.Address)
				fmt.Fprintf(w, "  Fetched:   %d\n", result.Fetched)
				fmt.Fprintf(w, "  Written:   %d\n", result.Written)
				fmt.Fprintf(w, "  Skipped:   %d\n", result.Skipped)
				fmt.Fprintf(w, "  Published: %d\n", result.Published)
				fmt.Fprintf(w, "  Assets:    %d\n", result.AssetCount)
			})
		},
	}
}

func scheduleCreateCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create or update the periodic sync schedule for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: append(syncFlags(), &cli.DurationFlag{
			Name:    "interval",
			Aliases: []string{"i"},
			Usage:   "Time between syncs (minimum 1m)",
			EnvVars: []string{"SYNC_INTERVAL"},
			Value:   5 * time.Minute,
		}),
		Action: func(c *cli.Context) error {
			input, err := syncInput(c)
			if err != nil {
				return err
			}
			interval := c.Duration("interval")
			if interval < time.Minute {
				return fmt.Errorf("interval must be at least 1m, got %s", interval)
			}

			// Registering the wallet is optional; it only backs the db commands.
			if c.String("database-url") != "" {
				store, closer, err := getStore(c)
				if err != nil {
					return err
				}
				defer closer()
				if _, err := store.UpsertWallet(c.Context, db.UpsertWalletParams{
					Chain:        input.Chain,
					Address:      input.Address,
					SyncInterval: interval,
				}); err != nil {
					return fmt.Errorf("failed to register wallet: %w", err)
				}
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.UpsertSyncSchedule(c.Context, input, interval); err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "✓ Schedule %s syncs every %s\n", temporal.ScheduleID(input.Chain, input.Address), interval)
			return nil
		},
	}
}

func scheduleDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete the sync schedule for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags:     []cli.Flag{currencyFlag()},
		Action: func(c *cli.Context) error {
			currency, address, err := walletArgs(c)
			if err != nil {
				return err
			}
			chain := currency.ChainName()

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.DeleteSyncSchedule(c.Context, chain, address); err != nil {
				return err
			}

			if c.String("database-url") != "" {
				store, closer, err := getStore(c)
				if err != nil {
					return err
				}
				defer closer()
				if err := store.DeleteWallet(c.Context, chain, address); err != nil && !errors.Is(err, db.ErrNotFound) {
					return fmt.Errorf("failed to unregister wallet: %w", err)
				}
			}

			fmt.Fprintf(c.App.Writer, "✓ Schedule %s deleted\n", temporal.ScheduleID(chain, address))
			return nil
		},
	}
}

func scheduleListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List wallet sync schedules",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			schedules, err := tc.ListSyncSchedules(c.Context)
			if err != nil {
				return err
			}

			return writeOutput(c, schedules, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "CHAIN\tADDRESS\tINTERVAL\tPAUSED\tNEXT RUN")
				for _, s := range schedules {
					next := "-"
					if s.NextRun != nil {
						next = s.NextRun.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", s.Chain, s.Address, s.Interval, s.Paused, next)
				}
				tw.Flush()
				fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d schedules\n", len(schedules))
			})
		},
	}
}

func syncInput(c *cli.Context) (temporal.SyncWalletInput, error) {
	currency, address, err := walletArgs(c)
	if err != nil {
		return temporal.SyncWalletInput{}, err
	}
	return temporal.SyncWalletInput{
		Chain:        currency.ChainName(),
		Address:      address,
		Depth:        c.Int("depth"),
		Limit:        c.Int("limit"),
		SkipBalances: c.Bool("skip-balances"),
	}, nil
}

func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("task-queue"),
		newLogger(c),
	)
}
