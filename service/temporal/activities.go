package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/unmarshall/client"
	"github.com/brojonat/unmarshall/service/db"
	"github.com/brojonat/unmarshall/service/metrics"
	natspkg "github.com/brojonat/unmarshall/service/nats"
	temporalsdk "go.temporal.io/sdk/temporal"
)

const (
	syncStatusSuccess = "success"
	syncStatusError   = "error"

	// errTypeInvalidInput marks failures that retrying cannot fix.
	errTypeInvalidInput = "InvalidInput"
)

// SyncWalletInput contains the input parameters for syncing a wallet.
type SyncWalletInput struct {
	Chain        string `json:"chain"` // chain name or symbol, e.g. "ethereum" or "ETH"
	Address      string `json:"address"`
	Depth        int    `json:"depth"`
	Limit        int    `json:"limit"`
	SkipBalances bool   `json:"skip_balances,omitempty"`
}

// SyncWalletResult summarizes one sync run.
type SyncWalletResult struct {
	Chain      string    `json:"chain"`
	Address    string    `json:"address"`
	Fetched    int       `json:"fetched"`
	Written    int       `json:"written"`
	Skipped    int       `json:"skipped"`
	Published  int       `json:"published"`
	AssetCount int       `json:"asset_count"`
	SyncTime   time.Time `json:"sync_time"`
	Error      *string   `json:"error,omitempty"`
}

// FetchTransactionsInput contains parameters for the FetchTransactions activity.
type FetchTransactionsInput struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
	Depth   int    `json:"depth"`
	Limit   int    `json:"limit"`
}

// FetchTransactionsResult contains the transactions returned by the API.
type FetchTransactionsResult struct {
	Transactions []client.Object `json:"transactions"`
}

// WriteTransactionsInput contains parameters for the WriteTransactions activity.
type WriteTransactionsInput struct {
	Chain        string          `json:"chain"`
	Address      string          `json:"address"`
	Transactions []client.Object `json:"transactions"`
}

// WriteTransactionsResult contains the result of writing transactions.
type WriteTransactionsResult struct {
	Written  int               `json:"written"`
	Skipped  int               `json:"skipped"` // Already existed in DB or had no hash
	Inserted []*db.Transaction `json:"inserted"`
}

// PublishTransactionsInput contains parameters for the PublishTransactions activity.
type PublishTransactionsInput struct {
	Transactions []*db.Transaction `json:"transactions"`
}

// PublishTransactionsResult contains the number of events published.
type PublishTransactionsResult struct {
	Published int `json:"published"`
}

// FetchBalancesInput contains parameters for the FetchBalances activity.
type FetchBalancesInput struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
}

// FetchBalancesResult contains the wallet assets returned by the API.
type FetchBalancesResult struct {
	Assets []client.Object `json:"assets"`
}

// WriteBalanceSnapshotInput contains parameters for the WriteBalanceSnapshot activity.
type WriteBalanceSnapshotInput struct {
	Chain   string          `json:"chain"`
	Address string          `json:"address"`
	Assets  []client.Object `json:"assets"`
}

// CompleteSyncInput contains parameters for the CompleteSync activity.
type CompleteSyncInput struct {
	Chain     string    `json:"chain"`
	Address   string    `json:"address"`
	StartedAt time.Time `json:"started_at"`
	Status    string    `json:"status"`
}

// APIClientInterface defines the Unmarshall API operations needed by activities.
type APIClientInterface interface {
	GetTransactions(ctx context.Context, currency client.Currency, address string, depth, limit int) ([]client.Object, error)
	GetWalletBalances(ctx context.Context, currency client.Currency, address string) ([]client.Object, error)
}

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	InsertTransactions(ctx context.Context, txns []*db.Transaction) ([]*db.Transaction, error)
	InsertBalanceSnapshot(ctx context.Context, chain, walletAddress string, assets []client.Object) (*db.BalanceSnapshot, error)
	UpdateWalletSyncTime(ctx context.Context, chain, address string, syncedAt time.Time) error
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishTransactionBatch(ctx context.Context, events []*natspkg.TransactionEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	api       APIClientInterface
	store     StoreInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If m is nil, no metrics will be recorded. If publisher is nil, publishing is skipped.
func NewActivities(api APIClientInterface, store StoreInterface, publisher PublisherInterface, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		api:       api,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// FetchTransactions validates the wallet and fetches its recent transactions.
func (a *Activities) FetchTransactions(ctx context.Context, input FetchTransactionsInput) (*FetchTransactionsResult, error) {
	currency, err := resolveWallet(input.Chain, input.Address)
	if err != nil {
		return nil, err
	}
	defer a.timeActivity("FetchTransactions", currency.ChainName())()

	a.logger.DebugContext(ctx, "fetching transactions",
		"chain", currency.ChainName(),
		"address", input.Address,
		"depth", input.Depth,
		"limit", input.Limit,
	)

	txns, err := a.api.GetTransactions(ctx, currency, input.Address, input.Depth, input.Limit)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to fetch transactions",
			"address", input.Address,
			"error", err,
		)
		return nil, apiError("failed to fetch transactions", err)
	}

	if a.metrics != nil {
		a.metrics.RecordTransactionsFetched(currency.ChainName(), len(txns))
	}

	a.logger.InfoContext(ctx, "fetched transactions",
		"chain", currency.ChainName(),
		"address", input.Address,
		"count", len(txns),
	)

	return &FetchTransactionsResult{Transactions: txns}, nil
}

// WriteTransactions stores transactions and reports which ones were new.
// Transactions without a hash cannot be deduplicated and are skipped.
func (a *Activities) WriteTransactions(ctx context.Context, input WriteTransactionsInput) (*WriteTransactionsResult, error) {
	currency, err := resolveWallet(input.Chain, input.Address)
	if err != nil {
		return nil, err
	}
	chain := currency.ChainName()
	defer a.timeActivity("WriteTransactions", chain)()

	txns := make([]*db.Transaction, 0, len(input.Transactions))
	for _, obj := range input.Transactions {
		txn, err := db.TransactionFromObject(chain, input.Address, obj)
		if err != nil {
			a.logger.WarnContext(ctx, "skipping transaction", "address", input.Address, "error", err)
			continue
		}
		txns = append(txns, txn)
	}

	inserted, err := a.store.InsertTransactions(ctx, txns)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to write transactions",
			"address", input.Address,
			"error", err,
		)
		return nil, fmt.Errorf("failed to write transactions: %w", err)
	}

	result := &WriteTransactionsResult{
		Written:  len(inserted),
		Skipped:  len(input.Transactions) - len(inserted),
		Inserted: inserted,
	}

	if a.metrics != nil {
		a.metrics.RecordTransactionsWritten(chain, result.Written)
		a.metrics.RecordTransactionsSkipped(chain, result.Skipped)
	}

	a.logger.InfoContext(ctx, "wrote transactions",
		"chain", chain,
		"address", input.Address,
		"written", result.Written,
		"skipped", result.Skipped,
	)

	return result, nil
}

// PublishTransactions publishes newly stored transactions to NATS.
func (a *Activities) PublishTransactions(ctx context.Context, input PublishTransactionsInput) (*PublishTransactionsResult, error) {
	if a.publisher == nil || len(input.Transactions) == 0 {
		return &PublishTransactionsResult{}, nil
	}
	defer a.timeActivity("PublishTransactions", input.Transactions[0].Chain)()

	events := make([]*natspkg.TransactionEvent, len(input.Transactions))
	for i, txn := range input.Transactions {
		events[i] = natspkg.FromDBTransaction(txn)
	}

	if err := a.publisher.PublishTransactionBatch(ctx, events); err != nil {
		return nil, fmt.Errorf("failed to publish transactions: %w", err)
	}

	a.logger.InfoContext(ctx, "published transactions", "count", len(events))
	return &PublishTransactionsResult{Published: len(events)}, nil
}

// FetchBalances fetches the assets currently held by the wallet.
func (a *Activities) FetchBalances(ctx context.Context, input FetchBalancesInput) (*FetchBalancesResult, error) {
	currency, err := resolveWallet(input.Chain, input.Address)
	if err != nil {
		return nil, err
	}
	defer a.timeActivity("FetchBalances", currency.ChainName())()

	assets, err := a.api.GetWalletBalances(ctx, currency, input.Address)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to fetch balances",
			"address", input.Address,
			"error", err,
		)
		return nil, apiError("failed to fetch balances", err)
	}

	a.logger.DebugContext(ctx, "fetched balances", "address", input.Address, "assets", len(assets))
	return &FetchBalancesResult{Assets: assets}, nil
}

// WriteBalanceSnapshot stores the fetched assets as a new snapshot.
func (a *Activities) WriteBalanceSnapshot(ctx context.Context, input WriteBalanceSnapshotInput) error {
	currency, err := resolveWallet(input.Chain, input.Address)
	if err != nil {
		return err
	}
	defer a.timeActivity("WriteBalanceSnapshot", currency.ChainName())()

	snap, err := a.store.InsertBalanceSnapshot(ctx, currency.ChainName(), input.Address, input.Assets)
	if err != nil {
		return fmt.Errorf("failed to write balance snapshot: %w", err)
	}

	a.logger.InfoContext(ctx, "wrote balance snapshot",
		"address", input.Address,
		"snapshot_id", snap.ID,
		"assets", len(input.Assets),
	)
	return nil
}

// CompleteSync records the sync outcome and, on success, stamps the wallet's
// last sync time. Wallets synced on demand without registration are fine.
func (a *Activities) CompleteSync(ctx context.Context, input CompleteSyncInput) error {
	chain := input.Chain
	if currency, err := client.ParseCurrency(input.Chain); err == nil {
		chain = currency.ChainName()
	}

	if a.metrics != nil {
		a.metrics.RecordWorkflowDuration(chain, input.Status, time.Since(input.StartedAt).Seconds())
	}

	if input.Status != syncStatusSuccess {
		return nil
	}

	err := a.store.UpdateWalletSyncTime(ctx, chain, input.Address, time.Now().UTC())
	if errors.Is(err, db.ErrNotFound) {
		a.logger.DebugContext(ctx, "wallet not registered, skipping sync time update", "address", input.Address)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to update wallet sync time: %w", err)
	}
	return nil
}

func (a *Activities) timeActivity(activity, chain string) func() {
	if a.metrics == nil {
		return func() {}
	}
	return metrics.Timer(time.Now(), func(duration float64) {
		a.metrics.RecordActivityDuration(activity, chain, duration)
	})
}

// resolveWallet parses the chain and validates the address for it. Both
// failures are marked non-retryable.
func resolveWallet(chain, address string) (client.Currency, error) {
	currency, err := client.ParseCurrency(chain)
	if err != nil {
		return 0, temporalsdk.NewNonRetryableApplicationError(err.Error(), errTypeInvalidInput, err)
	}
	if err := client.ValidateAddress(currency, address); err != nil {
		return 0, temporalsdk.NewNonRetryableApplicationError(err.Error(), errTypeInvalidInput, err)
	}
	return currency, nil
}

// apiError wraps a client error, marking 4xx responses other than 429 as
// non-retryable.
func apiError(msg string, err error) error {
	code := client.StatusCode(err)
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return temporalsdk.NewNonRetryableApplicationError(fmt.Sprintf("%s: %v", msg, err), "BadResponseCode", err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
