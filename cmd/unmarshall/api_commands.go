package main

import (
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/brojonat/unmarshall/client"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
)

const defaultHTTPTimeout = 30 * time.Second

func currencyFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "currency",
		Aliases:  []string{"c"},
		Usage:    "Chain to query: eth, sol or avax (chain names also accepted)",
		Required: true,
	}
}

func balancesCommand() *cli.Command {
	return &cli.Command{
		Name:      "balances",
		Usage:     "List the assets held by a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags:     []cli.Flag{currencyFlag()},
		Action: func(c *cli.Context) error {
			currency, address, err := walletArgs(c)
			if err != nil {
				return err
			}
			cl, err := newAPIClient(c)
			if err != nil {
				return err
			}

			assets, err := cl.GetWalletBalances(c.Context, currency, address)
			if err != nil {
				return fmt.Errorf("failed to get wallet balances: %w", err)
			}

			return writeOutput(c, assets, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "SYMBOL\tBALANCE\tCONTRACT")
				for _, asset := range assets {
					fmt.Fprintf(tw, "%s\t%s\t%s\n",
						assetSymbol(asset),
						formatAssetBalance(asset),
						asset.String("contract_address"),
					)
				}
				tw.Flush()
				fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d assets\n", len(assets))
			})
		},
	}
}

func transactionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "transactions",
		Usage:     "List recent transactions for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Description: `Fetches up to --depth pages of --limit transactions, newest first.

Use --filter to keep only transactions matching jq expressions:
  unmarshall transactions -c eth 0x... --filter '.status == "completed"'`,
		Flags: []cli.Flag{
			currencyFlag(),
			&cli.IntFlag{
				Name:    "depth",
				Aliases: []string{"d"},
				Usage:   "Maximum number of pages to fetch",
				Value:   1,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Transactions per page",
				Value:   client.DefaultPageSize,
			},
			&cli.StringSliceFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression each transaction must satisfy (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			currency, address, err := walletArgs(c)
			if err != nil {
				return err
			}
			filters, err := compileJQ(c.StringSlice("filter"))
			if err != nil {
				return err
			}
			cl, err := newAPIClient(c)
			if err != nil {
				return err
			}

			txns, err := cl.GetTransactions(c.Context, currency, address, c.Int("depth"), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to get transactions: %w", err)
			}

			if len(filters) > 0 {
				matched := make([]client.Object, 0, len(txns))
				for _, txn := range txns {
					ok, err := matchesAll(filters, txn)
					if err != nil {
						return err
					}
					if ok {
						matched = append(matched, txn)
					}
				}
				txns = matched
			}

			return writeOutput(c, txns, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "HASH\tBLOCK\tTIME\tSTATUS")
				for _, txn := range txns {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
						txn.Hash(),
						txn.String("block"),
						formatUnixTime(txn),
						txn.String("status"),
					)
				}
				tw.Flush()
				fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d transactions\n", len(txns))
			})
		},
	}
}

func transactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "transaction",
		Usage:     "Show a single transaction",
		Aliases:   []string{"tx"},
		ArgsUsage: "TX_HASH",
		Flags:     []cli.Flag{currencyFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction hash")
			}
			currency, err := client.ParseCurrency(c.String("currency"))
			if err != nil {
				return err
			}
			cl, err := newAPIClient(c)
			if err != nil {
				return err
			}

			txn, err := cl.GetTransaction(c.Context, currency, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get transaction: %w", err)
			}

			// The payload varies by chain, so the default output is JSON too.
			return writeOutput(c, txn, func(w io.Writer) {
				_ = outputJSON(w, txn)
			})
		},
	}
}

func countCommand() *cli.Command {
	return &cli.Command{
		Name:      "count",
		Usage:     "Show the total number of transactions for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags:     []cli.Flag{currencyFlag()},
		Action: func(c *cli.Context) error {
			currency, address, err := walletArgs(c)
			if err != nil {
				return err
			}
			cl, err := newAPIClient(c)
			if err != nil {
				return err
			}

			count, err := cl.GetWalletTransactionsCount(c.Context, currency, address)
			if err != nil {
				return fmt.Errorf("failed to get transactions count: %w", err)
			}

			return writeOutput(c, count, func(w io.Writer) {
				if n, ok := count.Count(); ok {
					fmt.Fprintf(w, "%d\n", n)
					return
				}
				_ = outputJSON(w, count)
			})
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check that an address is well formed for a chain",
		ArgsUsage: "WALLET_ADDRESS",
		Flags:     []cli.Flag{currencyFlag()},
		Action: func(c *cli.Context) error {
			currency, address, err := walletArgs(c)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ valid %s address: %s\n", currency.ChainName(), address)
			return nil
		},
	}
}

// walletArgs parses --currency and the address argument and validates the
// address for that chain.
func walletArgs(c *cli.Context) (client.Currency, string, error) {
	if c.NArg() != 1 {
		return 0, "", fmt.Errorf("requires exactly one argument: wallet address")
	}
	currency, err := client.ParseCurrency(c.String("currency"))
	if err != nil {
		return 0, "", err
	}
	address := c.Args().First()
	if err := client.ValidateAddress(currency, address); err != nil {
		return 0, "", err
	}
	return currency, address, nil
}

func newAPIClient(c *cli.Context) (*client.Client, error) {
	apiURL := c.String("api-url")
	if apiURL == "" {
		return nil, fmt.Errorf("api-url is required (set UNMARSHALL_API_URL env var or use --api-url)")
	}
	apiKey := c.String("api-key")
	if apiKey == "" {
		return nil, fmt.Errorf("api-key is required (set UNMARSHALL_API_KEY env var or use --api-key)")
	}

	timeout := c.Duration("http-timeout")
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	var opts []client.Option
	if rps := c.Float64("rate-limit"); rps > 0 {
		opts = append(opts, client.WithRateLimiter(rate.NewLimiter(rate.Limit(rps), 1)))
	}

	return client.NewClient(
		client.Config{BaseURL: apiURL, APIKey: apiKey},
		&http.Client{Timeout: timeout},
		newLogger(c),
		opts...,
	)
}

func assetSymbol(asset client.Object) string {
	for _, key := range []string{"contract_ticker_symbol", "symbol"} {
		if s := asset.String(key); s != "" {
			return s
		}
	}
	return "?"
}

// formatAssetBalance scales the raw integer balance by the asset's decimals.
// Balances without decimals are shown as returned.
func formatAssetBalance(asset client.Object) string {
	raw := asset.String("balance")
	if raw == "" {
		return "0"
	}
	decimals, ok := asset.Int("contract_decimals")
	if !ok {
		decimals, ok = asset.Int("decimals")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil || !ok {
		return raw
	}
	return amount.Shift(-int32(decimals)).String()
}

func formatUnixTime(txn client.Object) string {
	ts, ok := txn.Int("date")
	if !ok || ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
