package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brojonat/unmarshall/service/db"
)

// TransactionEvent is published to "unmarshall.txns.{chain}.{wallet_address}"
// whenever a sync stores a transaction it had not seen before.
type TransactionEvent struct {
	Chain         string `json:"chain"`
	WalletAddress string `json:"wallet_address"`
	Hash          string `json:"hash"`

	BlockNumber *int64     `json:"block_number,omitempty"`
	BlockTime   *time.Time `json:"block_time,omitempty"`
	Status      string     `json:"status,omitempty"`

	// Raw is the transaction exactly as returned by the Unmarshall API.
	Raw json.RawMessage `json:"raw"`

	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the JetStream subject the event is published on.
func (e *TransactionEvent) Subject() string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, e.Chain, e.WalletAddress)
}

// FromDBTransaction converts a stored transaction to a TransactionEvent for publishing.
func FromDBTransaction(txn *db.Transaction) *TransactionEvent {
	return &TransactionEvent{
		Chain:         txn.Chain,
		WalletAddress: txn.WalletAddress,
		Hash:          txn.Hash,
		BlockNumber:   txn.BlockNumber,
		BlockTime:     txn.BlockTime,
		Status:        txn.Status,
		Raw:           txn.Raw,
		PublishedAt:   time.Now().UTC(),
	}
}
