package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/unmarshall/client"
	"github.com/brojonat/unmarshall/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("not found")

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Wallet is a wallet registered for periodic sync.
type Wallet struct {
	Chain        string
	Address      string
	SyncInterval time.Duration
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UpsertWalletParams contains the parameters for registering a wallet.
type UpsertWalletParams struct {
	Chain        string
	Address      string
	SyncInterval time.Duration
}

// Transaction is a transaction fetched from the Unmarshall API for a wallet.
// Raw holds the full API payload; the other fields are extracted for querying.
type Transaction struct {
	Chain         string
	WalletAddress string
	Hash          string
	BlockNumber   *int64
	BlockTime     *time.Time
	Status        string
	Raw           json.RawMessage
	CreatedAt     time.Time
}

// ListTransactionsParams contains pagination parameters.
type ListTransactionsParams struct {
	Chain         string
	WalletAddress string
	Limit         int32
	Offset        int32
}

// BalanceSnapshot is the asset list of a wallet at a point in time.
type BalanceSnapshot struct {
	ID            int64
	Chain         string
	WalletAddress string
	Assets        json.RawMessage
	TakenAt       time.Time
}

// TransactionFromObject extracts the indexed columns from an API transaction.
func TransactionFromObject(chain, walletAddress string, obj client.Object) (*Transaction, error) {
	hash := obj.Hash()
	if hash == "" {
		return nil, fmt.Errorf("transaction has no hash")
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction %s: %w", hash, err)
	}

	txn := &Transaction{
		Chain:         chain,
		WalletAddress: walletAddress,
		Hash:          hash,
		Status:        obj.String("status"),
		Raw:           raw,
	}
	if block, ok := obj.Int("block"); ok {
		txn.BlockNumber = &block
	}
	if ts, ok := obj.Int("date"); ok && ts > 0 {
		t := time.Unix(ts, 0).UTC()
		txn.BlockTime = &t
	}
	return txn, nil
}

// UpsertWallet registers a wallet or updates its sync interval.
func (s *Store) UpsertWallet(ctx context.Context, params UpsertWalletParams) (w *Wallet, err error) {
	defer s.observe("upsert", "wallets", &err)()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO wallets (chain, address, sync_interval_seconds)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain, address)
		DO UPDATE SET sync_interval_seconds = EXCLUDED.sync_interval_seconds, updated_at = now()
		RETURNING chain, address, sync_interval_seconds, last_synced_at, created_at, updated_at`,
		params.Chain, params.Address, int64(params.SyncInterval/time.Second),
	)
	return scanWallet(row)
}

// GetWallet retrieves a registered wallet.
func (s *Store) GetWallet(ctx context.Context, chain, address string) (w *Wallet, err error) {
	defer s.observe("get", "wallets", &err)()

	row := s.pool.QueryRow(ctx, `
		SELECT chain, address, sync_interval_seconds, last_synced_at, created_at, updated_at
		FROM wallets WHERE chain = $1 AND address = $2`,
		chain, address,
	)
	return scanWallet(row)
}

// ListWallets returns every registered wallet ordered by creation time.
func (s *Store) ListWallets(ctx context.Context) (wallets []*Wallet, err error) {
	defer s.observe("list", "wallets", &err)()

	rows, err := s.pool.Query(ctx, `
		SELECT chain, address, sync_interval_seconds, last_synced_at, created_at, updated_at
		FROM wallets ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// DeleteWallet removes a wallet registration. Stored transactions are kept.
func (s *Store) DeleteWallet(ctx context.Context, chain, address string) (err error) {
	defer s.observe("delete", "wallets", &err)()

	tag, err := s.pool.Exec(ctx, `DELETE FROM wallets WHERE chain = $1 AND address = $2`, chain, address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateWalletSyncTime records when a wallet was last synced.
func (s *Store) UpdateWalletSyncTime(ctx context.Context, chain, address string, syncedAt time.Time) (err error) {
	defer s.observe("update", "wallets", &err)()

	tag, err := s.pool.Exec(ctx, `
		UPDATE wallets SET last_synced_at = $3, updated_at = now()
		WHERE chain = $1 AND address = $2`,
		chain, address, syncedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertTransactions stores txns in a single database transaction and returns
// only the rows that were not already present.
func (s *Store) InsertTransactions(ctx context.Context, txns []*Transaction) (inserted []*Transaction, err error) {
	if len(txns) == 0 {
		return nil, nil
	}
	defer s.observe("insert", "transactions", &err)()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, txn := range txns {
		tag, err := tx.Exec(ctx, `
			INSERT INTO transactions (chain, wallet_address, tx_hash, block_number, block_time, status, raw)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (chain, wallet_address, tx_hash) DO NOTHING`,
			txn.Chain, txn.WalletAddress, txn.Hash, txn.BlockNumber, txn.BlockTime, txn.Status, []byte(txn.Raw),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert transaction %s: %w", txn.Hash, err)
		}
		if tag.RowsAffected() == 1 {
			inserted = append(inserted, txn)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return inserted, nil
}

// ListTransactions retrieves transactions for a wallet, newest block first.
func (s *Store) ListTransactions(ctx context.Context, params ListTransactionsParams) (txns []*Transaction, err error) {
	defer s.observe("list", "transactions", &err)()

	rows, err := s.pool.Query(ctx, `
		SELECT chain, wallet_address, tx_hash, block_number, block_time, status, raw, created_at
		FROM transactions
		WHERE chain = $1 AND wallet_address = $2
		ORDER BY block_number DESC NULLS LAST, created_at DESC
		LIMIT $3 OFFSET $4`,
		params.Chain, params.WalletAddress, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t Transaction
		var raw []byte
		if err := rows.Scan(&t.Chain, &t.WalletAddress, &t.Hash, &t.BlockNumber, &t.BlockTime, &t.Status, &raw, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Raw = raw
		txns = append(txns, &t)
	}
	return txns, rows.Err()
}

// CountTransactions counts stored transactions for a wallet.
func (s *Store) CountTransactions(ctx context.Context, chain, walletAddress string) (n int64, err error) {
	defer s.observe("count", "transactions", &err)()

	err = s.pool.QueryRow(ctx,
		`SELECT count(*) FROM transactions WHERE chain = $1 AND wallet_address = $2`,
		chain, walletAddress,
	).Scan(&n)
	return n, err
}

// InsertBalanceSnapshot stores the asset list returned by the API.
func (s *Store) InsertBalanceSnapshot(ctx context.Context, chain, walletAddress string, assets []client.Object) (snap *BalanceSnapshot, err error) {
	defer s.observe("insert", "balance_snapshots", &err)()

	if assets == nil {
		assets = []client.Object{}
	}
	raw, err := json.Marshal(assets)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assets: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO balance_snapshots (chain, wallet_address, assets)
		VALUES ($1, $2, $3)
		RETURNING id, chain, wallet_address, assets, taken_at`,
		chain, walletAddress, raw,
	)
	return scanSnapshot(row)
}

// LatestBalanceSnapshot returns the most recent snapshot for a wallet.
func (s *Store) LatestBalanceSnapshot(ctx context.Context, chain, walletAddress string) (snap *BalanceSnapshot, err error) {
	defer s.observe("get", "balance_snapshots", &err)()

	row := s.pool.QueryRow(ctx, `
		SELECT id, chain, wallet_address, assets, taken_at
		FROM balance_snapshots
		WHERE chain = $1 AND wallet_address = $2
		ORDER BY taken_at DESC, id DESC
		LIMIT 1`,
		chain, walletAddress,
	)
	return scanSnapshot(row)
}

// observe records query duration and outcome. errp is read when the returned
// func runs, so it must point at the caller's named error result.
func (s *Store) observe(operation, table string, errp *error) func() {
	if s.metrics == nil {
		return func() {}
	}
	return metrics.Timer(time.Now(), func(duration float64) {
		s.metrics.RecordDBQuery(operation, table, duration, *errp)
	})
}

func scanWallet(row pgx.Row) (*Wallet, error) {
	var w Wallet
	var intervalSeconds int64
	err := row.Scan(&w.Chain, &w.Address, &intervalSeconds, &w.LastSyncedAt, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	w.SyncInterval = time.Duration(intervalSeconds) * time.Second
	return &w, nil
}

func scanSnapshot(row pgx.Row) (*BalanceSnapshot, error) {
	var snap BalanceSnapshot
	var assets []byte
	err := row.Scan(&snap.ID, &snap.Chain, &snap.WalletAddress, &assets, &snap.TakenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap.Assets = assets
	return &snap, nil
}
