package client

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	solana "github.com/gagliardetto/solana-go"
)

// ValidateAddress checks that address is well formed for the currency's chain.
// Ethereum and Avalanche C-chain addresses are 0x-prefixed 20-byte hex;
// Solana addresses are base58 encoded 32-byte public keys.
func ValidateAddress(currency Currency, address string) error {
	switch currency {
	case ETH, AVAX:
		if !common.IsHexAddress(address) || len(address) != 42 {
			return fmt.Errorf("invalid %s address %q", currency.ChainName(), address)
		}
		return nil
	case SOL:
		if _, err := solana.PublicKeyFromBase58(address); err != nil {
			return fmt.Errorf("invalid solana address %q: %w", address, err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported currency %s", currency)
	}
}
