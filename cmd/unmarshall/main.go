package main

import (
	"fmt"
	"log"
	"os"

	"github.com/brojonat/unmarshall/service/config"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Flags read their EnvVars during parsing, so .env has to be loaded first.
	config.LoadDotEnv(".env")

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "unmarshall",
		Usage: "Query wallet balances and transactions through the Unmarshall API",
		Description: `A command-line client for the Unmarshall blockchain data API.

Supported chains: ETH (ethereum), SOL (solana), AVAX (avalanche).
Use the sync and schedule commands to persist wallet history via the worker.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Unmarshall API commands
			balancesCommand(),
			transactionsCommand(),
			transactionCommand(),
			countCommand(),
			validateCommand(),
			// Wallet sync via Temporal
			{
				Name:  "wallet",
				Usage: "Wallet sync commands",
				Subcommands: []*cli.Command{
					walletSyncCommand(),
				},
			},
			{
				Name:  "schedule",
				Usage: "Manage periodic wallet sync schedules",
				Subcommands: []*cli.Command{
					scheduleCreateCommand(),
					scheduleDeleteCommand(),
					scheduleListCommand(),
				},
			},
			// Database inspection commands
			{
				Name:  "db",
				Usage: "Inspect synced data",
				Subcommands: []*cli.Command{
					dbMigrateCommand(),
					dbWalletsCommand(),
					dbTransactionsCommand(),
					dbBalancesCommand(),
				},
			},
			// NATS transaction streaming commands
			{
				Name:  "nats",
				Usage: "NATS transaction streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
				},
			},
			versionCommand(),
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "Unmarshall API base URL",
				EnvVars: []string{"UNMARSHALL_API_URL"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Unmarshall API key",
				EnvVars: []string{"UNMARSHALL_API_KEY"},
			},
			&cli.DurationFlag{
				Name:    "http-timeout",
				Usage:   "Timeout for each API request",
				EnvVars: []string{"HTTP_TIMEOUT"},
				Value:   defaultHTTPTimeout,
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Usage:   "Maximum API requests per second (0 disables limiting)",
				EnvVars: []string{"RATE_LIMIT_RPS"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level for stderr output (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "error",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Temporal task queue served by the worker",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "unmarshall-wallet-sync",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "Transform JSON output with a jq expression (implies --json)",
			},
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			w := c.App.Writer
			fmt.Fprintf(w, "unmarshall CLI\n")
			fmt.Fprintf(w, "  Version: %s\n", version)
			fmt.Fprintf(w, "  Commit:  %s\n", commit)
			fmt.Fprintf(w, "  Built:   %s\n", date)
			return nil
		},
	}
}
