package client

import (
	"fmt"
	"strings"
)

// Currency identifies a chain supported by the Unmarshall API.
type Currency uint8

const (
	ETH Currency = iota
	SOL
	AVAX
)

var chainNames = map[Currency]string{
	ETH:  "ethereum",
	SOL:  "solana",
	AVAX: "avalanche",
}

var symbols = map[Currency]string{
	ETH:  "ETH",
	SOL:  "SOL",
	AVAX: "AVAX",
}

// Currencies lists every supported currency in declaration order.
func Currencies() []Currency {
	return []Currency{ETH, SOL, AVAX}
}

// ChainName returns the chain name used in API paths (e.g. "ethereum").
func (c Currency) ChainName() string {
	if name, ok := chainNames[c]; ok {
		return name
	}
	return ""
}

// String returns the ticker symbol.
func (c Currency) String() string {
	if s, ok := symbols[c]; ok {
		return s
	}
	return fmt.Sprintf("Currency(%d)", uint8(c))
}

// Valid reports whether c is one of the supported currencies.
func (c Currency) Valid() bool {
	_, ok := chainNames[c]
	return ok
}

// ParseCurrency accepts a ticker symbol or chain name, case-insensitively.
func ParseCurrency(s string) (Currency, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Currencies() {
		if v == strings.ToLower(symbols[c]) || v == chainNames[c] {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unsupported currency %q (expected one of eth, sol, avax)", s)
}
