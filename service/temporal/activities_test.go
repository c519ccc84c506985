package temporal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/unmarshall/client"
	"github.com/brojonat/unmarshall/service/db"
	"github.com/brojonat/unmarshall/service/metrics"
	natspkg "github.com/brojonat/unmarshall/service/nats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	temporalsdk "go.temporal.io/sdk/temporal"
)

const (
	testEthWallet = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	testSolWallet = "11111111111111111111111111111111"
)

// Mock API Client
type MockAPIClient struct {
	mock.Mock
}

func (m *MockAPIClient) GetTransactions(ctx context.Context, currency client.Currency, address string, depth, limit int) ([]client.Object, error) {
	args := m.Called(ctx, currency, address, depth, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]client.Object), args.Error(1)
}

func (m *MockAPIClient) GetWalletBalances(ctx context.Context, currency client.Currency, address string) ([]client.Object, error) {
	args := m.Called(ctx, currency, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]client.Object), args.Error(1)
}

// Mock Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) InsertTransactions(ctx context.Context, txns []*db.Transaction) ([]*db.Transaction, error) {
	args := m.Called(ctx, txns)
	if fn, ok := args.Get(0).(func([]*db.Transaction) []*db.Transaction); ok {
		return fn(txns), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*db.Transaction), args.Error(1)
}

func (m *MockStore) InsertBalanceSnapshot(ctx context.Context, chain, walletAddress string, assets []client.Object) (*db.BalanceSnapshot, error) {
	args := m.Called(ctx, chain, walletAddress, assets)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.BalanceSnapshot), args.Error(1)
}

func (m *MockStore) UpdateWalletSyncTime(ctx context.Context, chain, address string, syncedAt time.Time) error {
	args := m.Called(ctx, chain, address, syncedAt)
	return args.Error(0)
}

func newTestActivities(api *MockAPIClient, store *MockStore, pub PublisherInterface) *Activities {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewActivities(api, store, pub, metrics.NewMetrics(prometheus.NewRegistry()), logger)
}

func isNonRetryable(err error) bool {
	var appErr *temporalsdk.ApplicationError
	return errors.As(err, &appErr) && appErr.NonRetryable()
}

func TestActivities_FetchTransactions(t *testing.T) {
	tests := []struct {
		name            string
		input           FetchTransactionsInput
		setupMock       func(*MockAPIClient)
		expectedCount   int
		expectedError   bool
		expectRetryable bool
	}{
		{
			name:  "successful fetch",
			input: FetchTransactionsInput{Chain: "ETH", Address: testEthWallet, Depth: 2, Limit: 10},
			setupMock: func(m *MockAPIClient) {
				m.On("GetTransactions", mock.Anything, client.ETH, testEthWallet, 2, 10).
					Return([]client.Object{{"id": "0x1"}, {"id": "0x2"}}, nil)
			},
			expectedCount: 2,
		},
		{
			name:  "chain name accepted",
			input: FetchTransactionsInput{Chain: "solana", Address: testSolWallet, Depth: 1, Limit: 25},
			setupMock: func(m *MockAPIClient) {
				m.On("GetTransactions", mock.Anything, client.SOL, testSolWallet, 1, 25).
					Return([]client.Object{}, nil)
			},
			expectedCount: 0,
		},
		{
			name:          "unsupported chain is not retried",
			input:         FetchTransactionsInput{Chain: "btc", Address: testEthWallet},
			setupMock:     func(m *MockAPIClient) {},
			expectedError: true,
		},
		{
			name:          "invalid address is not retried",
			input:         FetchTransactionsInput{Chain: "eth", Address: "not-an-address"},
			setupMock:     func(m *MockAPIClient) {},
			expectedError: true,
		},
		{
			name:  "404 is not retried",
			input: FetchTransactionsInput{Chain: "eth", Address: testEthWallet, Depth: 1, Limit: 25},
			setupMock: func(m *MockAPIClient) {
				m.On("GetTransactions", mock.Anything, client.ETH, testEthWallet, 1, 25).
					Return(nil, &client.BadResponseCodeError{StatusCode: 404, Body: "not found"})
			},
			expectedError: true,
		},
		{
			name:  "server error is retried",
			input: FetchTransactionsInput{Chain: "eth", Address: testEthWallet, Depth: 1, Limit: 25},
			setupMock: func(m *MockAPIClient) {
				m.On("GetTransactions", mock.Anything, client.ETH, testEthWallet, 1, 25).
					Return(nil, &client.BadResponseCodeError{StatusCode: 502, Body: "bad gateway"})
			},
			expectedError:   true,
			expectRetryable: true,
		},
		{
			name:  "rate limited is retried",
			input: FetchTransactionsInput{Chain: "eth", Address: testEthWallet, Depth: 1, Limit: 25},
			setupMock: func(m *MockAPIClient) {
				m.On("GetTransactions", mock.Anything, client.ETH, testEthWallet, 1, 25).
					Return(nil, &client.BadResponseCodeError{StatusCode: 429, Body: "slow down"})
			},
			expectedError:   true,
			expectRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockAPIClient)
			tt.setupMock(api)
			activities := newTestActivities(api, new(MockStore), nil)

			result, err := activities.FetchTransactions(context.Background(), tt.input)

			if tt.expectedError {
				require.Error(t, err)
				assert.Nil(t, result)
				assert.Equal(t, !tt.expectRetryable, isNonRetryable(err))
			} else {
				require.NoError(t, err)
				assert.Len(t, result.Transactions, tt.expectedCount)
			}
			api.AssertExpectations(t)
		})
	}
}

func TestActivities_WriteTransactions(t *testing.T) {
	t.Run("returns only new rows", func(t *testing.T) {
		store := new(MockStore)
		activities := newTestActivities(new(MockAPIClient), store, nil)

		store.On("InsertTransactions", mock.Anything, mock.MatchedBy(func(txns []*db.Transaction) bool {
			return len(txns) == 2 && txns[0].Hash == "0x1" && txns[0].Chain == "ethereum"
		})).Return(func(txns []*db.Transaction) []*db.Transaction {
			return txns[:1]
		}, nil)

		result, err := activities.WriteTransactions(context.Background(), WriteTransactionsInput{
			Chain:   "eth",
			Address: testEthWallet,
			Transactions: []client.Object{
				{"id": "0x1", "block": float64(10)},
				{"id": "0x2", "block": float64(9)},
				{"note": "no hash"},
			},
		})

		require.NoError(t, err)
		assert.Equal(t, 1, result.Written)
		assert.Equal(t, 2, result.Skipped)
		require.Len(t, result.Inserted, 1)
		assert.Equal(t, "0x1", result.Inserted[0].Hash)
		store.AssertExpectations(t)
	})

	t.Run("store failure", func(t *testing.T) {
		store := new(MockStore)
		activities := newTestActivities(new(MockAPIClient), store, nil)
		store.On("InsertTransactions", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

		_, err := activities.WriteTransactions(context.Background(), WriteTransactionsInput{
			Chain:        "eth",
			Address:      testEthWallet,
			Transactions: []client.Object{{"id": "0x1"}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestActivities_PublishTransactions(t *testing.T) {
	txns := []*db.Transaction{
		{Chain: "ethereum", WalletAddress: testEthWallet, Hash: "0x1"},
		{Chain: "ethereum", WalletAddress: testEthWallet, Hash: "0x2"},
	}

	t.Run("publishes every transaction", func(t *testing.T) {
		pub := natspkg.NewMockPublisher()
		activities := newTestActivities(new(MockAPIClient), new(MockStore), pub)

		result, err := activities.PublishTransactions(context.Background(), PublishTransactionsInput{Transactions: txns})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Published)
		assert.Len(t, pub.EventsForWallet("ethereum", testEthWallet), 2)
	})

	t.Run("no publisher configured", func(t *testing.T) {
		activities := newTestActivities(new(MockAPIClient), new(MockStore), nil)

		result, err := activities.PublishTransactions(context.Background(), PublishTransactionsInput{Transactions: txns})
		require.NoError(t, err)
		assert.Equal(t, 0, result.Published)
	})

	t.Run("publish failure", func(t *testing.T) {
		pub := natspkg.NewMockPublisher()
		pub.SetPublishError(errors.New("nats down"))
		activities := newTestActivities(new(MockAPIClient), new(MockStore), pub)

		_, err := activities.PublishTransactions(context.Background(), PublishTransactionsInput{Transactions: txns})
		assert.Error(t, err)
	})
}

func TestActivities_Balances(t *testing.T) {
	api := new(MockAPIClient)
	store := new(MockStore)
	activities := newTestActivities(api, store, nil)

	assets := []client.Object{{"symbol": "AVAX", "balance": "1000000000000000000", "decimals": float64(18)}}
	api.On("GetWalletBalances", mock.Anything, client.AVAX, testEthWallet).Return(assets, nil)
	store.On("InsertBalanceSnapshot", mock.Anything, "avalanche", testEthWallet, assets).
		Return(&db.BalanceSnapshot{ID: 7}, nil)

	balances, err := activities.FetchBalances(context.Background(), FetchBalancesInput{Chain: "avax", Address: testEthWallet})
	require.NoError(t, err)
	require.Len(t, balances.Assets, 1)

	err = activities.WriteBalanceSnapshot(context.Background(), WriteBalanceSnapshotInput{
		Chain:   "avax",
		Address: testEthWallet,
		Assets:  balances.Assets,
	})
	require.NoError(t, err)

	api.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestActivities_CompleteSync(t *testing.T) {
	t.Run("success stamps wallet", func(t *testing.T) {
		store := new(MockStore)
		activities := newTestActivities(new(MockAPIClient), store, nil)
		store.On("UpdateWalletSyncTime", mock.Anything, "solana", testSolWallet, mock.AnythingOfType("time.Time")).Return(nil)

		err := activities.CompleteSync(context.Background(), CompleteSyncInput{
			Chain:     "SOL",
			Address:   testSolWallet,
			StartedAt: time.Now().Add(-time.Second),
			Status:    syncStatusSuccess,
		})
		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("unregistered wallet is fine", func(t *testing.T) {
		store := new(MockStore)
		activities := newTestActivities(new(MockAPIClient), store, nil)
		store.On("UpdateWalletSyncTime", mock.Anything, "solana", testSolWallet, mock.Anything).Return(db.ErrNotFound)

		err := activities.CompleteSync(context.Background(), CompleteSyncInput{
			Chain:   "solana",
			Address: testSolWallet,
			Status:  syncStatusSuccess,
		})
		assert.NoError(t, err)
	})

	t.Run("failed sync does not touch the store", func(t *testing.T) {
		store := new(MockStore)
		activities := newTestActivities(new(MockAPIClient), store, nil)

		err := activities.CompleteSync(context.Background(), CompleteSyncInput{
			Chain:   "solana",
			Address: testSolWallet,
			Status:  syncStatusError,
		})
		assert.NoError(t, err)
		store.AssertNotCalled(t, "UpdateWalletSyncTime", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestParseScheduleID(t *testing.T) {
	id := ScheduleID("ethereum", testEthWallet)
	assert.Equal(t, "sync-ethereum-"+testEthWallet, id)

	chain, address, ok := ParseScheduleID(id)
	assert.True(t, ok)
	assert.Equal(t, "ethereum", chain)
	assert.Equal(t, testEthWallet, address)

	_, _, ok = ParseScheduleID("poll-wallet-abc")
	assert.False(t, ok)
	_, _, ok = ParseScheduleID("sync-ethereum")
	assert.False(t, ok)
}
