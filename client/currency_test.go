package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrency_ChainName(t *testing.T) {
	tests := []struct {
		currency Currency
		chain    string
		symbol   string
	}{
		{ETH, "ethereum", "ETH"},
		{SOL, "solana", "SOL"},
		{AVAX, "avalanche", "AVAX"},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			assert.True(t, tt.currency.Valid())
			assert.Equal(t, tt.chain, tt.currency.ChainName())
			assert.Equal(t, tt.symbol, tt.currency.String())
		})
	}

	// Every declared currency has a chain name.
	for _, c := range Currencies() {
		assert.NotEmpty(t, c.ChainName())
	}
}

func TestCurrency_Unknown(t *testing.T) {
	c := Currency(42)
	assert.False(t, c.Valid())
	assert.Equal(t, "", c.ChainName())
	assert.Equal(t, "Currency(42)", c.String())
}

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		input   string
		want    Currency
		wantErr bool
	}{
		{"eth", ETH, false},
		{"ETH", ETH, false},
		{"ethereum", ETH, false},
		{" sol ", SOL, false},
		{"Solana", SOL, false},
		{"avax", AVAX, false},
		{"avalanche", AVAX, false},
		{"btc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCurrency(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
