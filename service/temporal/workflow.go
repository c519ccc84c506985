package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// SyncWalletWorkflow pulls recent transactions and balances for one wallet from
// the Unmarshall API. It is triggered by a per-wallet schedule or run on demand.
//
// The workflow performs these steps:
// 1. Fetch up to Depth pages of transactions (FetchTransactions)
// 2. Store them, keeping only the ones not seen before (WriteTransactions)
// 3. Publish the new ones to NATS (PublishTransactions)
// 4. Fetch and store a balance snapshot (FetchBalances, WriteBalanceSnapshot)
// 5. Record the outcome (CompleteSync)
func SyncWalletWorkflow(ctx workflow.Context, input SyncWalletInput) (*SyncWalletResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SyncWalletWorkflow started", "chain", input.Chain, "address", input.Address)

	startedAt := workflow.Now(ctx)
	result := &SyncWalletResult{
		Chain:    input.Chain,
		Address:  input.Address,
		SyncTime: startedAt,
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	fail := func(step string, err error) (*SyncWalletResult, error) {
		logger.Error("sync step failed", "step", step, "address", input.Address, "error", err)
		errMsg := fmt.Sprintf("%s: %v", step, err)
		result.Error = &errMsg
		complete(ctx, input, startedAt, syncStatusError)
		return result, fmt.Errorf("%s: %w", step, err)
	}

	// Step 1: fetch transactions
	var fetched *FetchTransactionsResult
	err := workflow.ExecuteActivity(ctx, a.FetchTransactions, FetchTransactionsInput{
		Chain:   input.Chain,
		Address: input.Address,
		Depth:   input.Depth,
		Limit:   input.Limit,
	}).Get(ctx, &fetched)
	if err != nil {
		return fail("failed to fetch transactions", err)
	}
	result.Fetched = len(fetched.Transactions)

	// Steps 2 and 3: store and publish anything new
	if len(fetched.Transactions) > 0 {
		var written *WriteTransactionsResult
		err = workflow.ExecuteActivity(ctx, a.WriteTransactions, WriteTransactionsInput{
			Chain:        input.Chain,
			Address:      input.Address,
			Transactions: fetched.Transactions,
		}).Get(ctx, &written)
		if err != nil {
			return fail("failed to write transactions", err)
		}
		result.Written = written.Written
		result.Skipped = written.Skipped

		if len(written.Inserted) > 0 {
			var published *PublishTransactionsResult
			err = workflow.ExecuteActivity(ctx, a.PublishTransactions, PublishTransactionsInput{
				Transactions: written.Inserted,
			}).Get(ctx, &published)
			if err != nil {
				// The rows are already stored; a missed event should not fail the sync.
				logger.Warn("failed to publish transactions", "address", input.Address, "error", err)
			} else {
				result.Published = published.Published
			}
		}
	} else {
		logger.Info("no transactions returned", "address", input.Address)
	}

	// Step 4: balance snapshot
	if !input.SkipBalances {
		var balances *FetchBalancesResult
		err = workflow.ExecuteActivity(ctx, a.FetchBalances, FetchBalancesInput{
			Chain:   input.Chain,
			Address: input.Address,
		}).Get(ctx, &balances)
		if err != nil {
			return fail("failed to fetch balances", err)
		}
		result.AssetCount = len(balances.Assets)

		err = workflow.ExecuteActivity(ctx, a.WriteBalanceSnapshot, WriteBalanceSnapshotInput{
			Chain:   input.Chain,
			Address: input.Address,
			Assets:  balances.Assets,
		}).Get(ctx, nil)
		if err != nil {
			return fail("failed to write balance snapshot", err)
		}
	}

	// Step 5: record the outcome
	complete(ctx, input, startedAt, syncStatusSuccess)

	logger.Info("SyncWalletWorkflow completed successfully",
		"chain", input.Chain,
		"address", input.Address,
		"fetched", result.Fetched,
		"written", result.Written,
		"skipped", result.Skipped,
		"published", result.Published,
	)

	return result, nil
}

// complete runs CompleteSync. Its failure is logged and otherwise ignored.
func complete(ctx workflow.Context, input SyncWalletInput, startedAt time.Time, status string) {
	err := workflow.ExecuteActivity(ctx, a.CompleteSync, CompleteSyncInput{
		Chain:     input.Chain,
		Address:   input.Address,
		StartedAt: startedAt,
		Status:    status,
	}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Warn("failed to complete sync", "address", input.Address, "error", err)
	}
}
