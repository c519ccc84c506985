package db

import (
	"context"
	"fmt"
)

// schema is applied by Migrate. Statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	chain                 TEXT        NOT NULL,
	address               TEXT        NOT NULL,
	sync_interval_seconds BIGINT      NOT NULL,
	last_synced_at        TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain, address)
);

CREATE TABLE IF NOT EXISTS transactions (
	chain          TEXT        NOT NULL,
	wallet_address TEXT        NOT NULL,
	tx_hash        TEXT        NOT NULL,
	block_number   BIGINT,
	block_time     TIMESTAMPTZ,
	status         TEXT        NOT NULL DEFAULT '',
	raw            JSONB       NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain, wallet_address, tx_hash)
);

CREATE INDEX IF NOT EXISTS transactions_wallet_block_idx
	ON transactions (chain, wallet_address, block_number DESC);

CREATE TABLE IF NOT EXISTS balance_snapshots (
	id             BIGSERIAL   PRIMARY KEY,
	chain          TEXT        NOT NULL,
	wallet_address TEXT        NOT NULL,
	assets         JSONB       NOT NULL,
	taken_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS balance_snapshots_wallet_idx
	ON balance_snapshots (chain, wallet_address, taken_at DESC);
`

// Migrate creates the tables used by the Store if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
