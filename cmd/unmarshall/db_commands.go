package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/brojonat/unmarshall/client"
	"github.com/brojonat/unmarshall/service/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func dbMigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the tables used by the sync worker",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(c.Context); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✓ Schema is up to date")
			return nil
		},
	}
}

func dbWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:    "wallets",
		Usage:   "List wallets registered for periodic sync",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			wallets, err := store.ListWallets(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}

			return writeOutput(c, wallets, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "CHAIN\tADDRESS\tSYNC INTERVAL\tLAST SYNC\tCREATED")
				for _, wallet := range wallets {
					lastSync := "never"
					if wallet.LastSyncedAt != nil {
						lastSync = wallet.LastSyncedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\n",
						wallet.Chain,
						wallet.Address,
						wallet.SyncInterval,
						lastSync,
						wallet.CreatedAt.Format(time.RFC3339),
					)
				}
				tw.Flush()
				fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d wallets\n", len(wallets))
			})
		},
	}
}

func dbTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "transactions",
		Usage:     "List synced transactions for a wallet",
		Aliases:   []string{"txs"},
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			currencyFlag(),
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of transactions to show",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of transactions to skip",
			},
		},
		Action: func(c *cli.Context) error {
			currency, address, err := walletArgs(c)
			if err != nil {
				return err
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			chain := currency.ChainName()
			txns, err := store.ListTransactions(c.Context, db.ListTransactionsParams{
				Chain:         chain,
				WalletAddress: address,
				Limit:         int32(c.Int("limit")),
				Offset:        int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}
			total, err := store.CountTransactions(c.Context, chain, address)
			if err != nil {
				return fmt.Errorf("failed to count transactions: %w", err)
			}

			return writeOutput(c, txns, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "HASH\tBLOCK\tTIME\tSTATUS")
				for _, txn := range txns {
					block := "-"
					if txn.BlockNumber != nil {
						block = fmt.Sprint(*txn.BlockNumber)
					}
					blockTime := "-"
					if txn.BlockTime != nil {
						blockTime = txn.BlockTime.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", txn.Hash, block, blockTime, txn.Status)
				}
				tw.Flush()
				fmt.Fprintf(c.App.ErrWriter, "\nShowing %d of %d transactions\n", len(txns), total)
			})
		},
	}
}

func dbBalancesCommand() *cli.Command {
	return &cli.Command{
		Name:      "balances",
		Usage:     "Show the latest balance snapshot for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags:     []cli.Flag{currencyFlag()},
		Action: func(c *cli.Context) error {
			currency, address, err := walletArgs(c)
			if err != nil {
				return err
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			snap, err := store.LatestBalanceSnapshot(c.Context, currency.ChainName(), address)
			if err != nil {
				return fmt.Errorf("failed to get balance snapshot: %w", err)
			}

			var assets []client.Object
			if err := json.Unmarshal(snap.Assets, &assets); err != nil {
				return fmt.Errorf("failed to decode snapshot assets: %w", err)
			}

			return writeOutput(c, assets, func(w io.Writer) {
				fmt.Fprintf(w, "Snapshot taken %s\n\n", snap.TakenAt.Format(time.RFC3339))
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "SYMBOL\tBALANCE")
				for _, asset := range assets {
					fmt.Fprintf(tw, "%s\t%s\n", assetSymbol(asset), formatAssetBalance(asset))
				}
				tw.Flush()
			})
		},
	}
}

// getStore connects to the database named by --database-url.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db.NewStore(pool, nil), pool.Close, nil
}
