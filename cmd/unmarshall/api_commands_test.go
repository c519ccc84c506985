package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/brojonat/unmarshall/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEthWallet = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"UNMARSHALL_API_URL", "UNMARSHALL_API_KEY", "HTTP_TIMEOUT", "RATE_LIMIT_RPS",
		"LOG_LEVEL", "DATABASE_URL", "SYNC_DEPTH", "SYNC_PAGE_SIZE", "SYNC_INTERVAL",
	} {
		// t.Setenv restores the original value after the test.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// runApp runs the CLI with args and returns what it wrote to stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"unmarshall"}, args...))
	return out.String(), err
}

func newAPIServer(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("auth_key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestBalancesCommand(t *testing.T) {
	clearEnv(t)
	url := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ethereum/address/"+testEthWallet+"/assets", r.URL.Path)
		writeJSON(t, w, []map[string]interface{}{
			{"contract_ticker_symbol": "ETH", "contract_decimals": 18, "balance": "1500000000000000000"},
			{"contract_ticker_symbol": "USDC", "contract_decimals": 6, "balance": "2500000", "contract_address": "0xa0b8"},
		})
	})

	out, err := runApp(t, "--api-url", url, "--api-key", "test-key", "balances", "-c", "eth", testEthWallet)
	require.NoError(t, err)
	assert.Contains(t, out, "SYMBOL")
	assert.Contains(t, out, "1.5")
	assert.Contains(t, out, "2.5")
	assert.Contains(t, out, "0xa0b8")
}

func TestBalancesCommand_JSONAndJQ(t *testing.T) {
	clearEnv(t)
	url := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]interface{}{
			{"contract_ticker_symbol": "AVAX", "contract_decimals": 18, "balance": "1"},
		})
	})

	out, err := runApp(t, "--api-url", url, "--api-key", "test-key", "--json", "balances", "-c", "avax", testEthWallet)
	require.NoError(t, err)
	var assets []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &assets))
	require.Len(t, assets, 1)
	assert.Equal(t, "AVAX", assets[0]["contract_ticker_symbol"])

	out, err = runApp(t, "--api-url", url, "--api-key", "test-key", "--jq", ".[0].contract_ticker_symbol", "balances", "-c", "avax", testEthWallet)
	require.NoError(t, err)
	assert.Equal(t, "\"AVAX\"\n", out)
}

func TestTransactionsCommand_Filter(t *testing.T) {
	clearEnv(t)
	var pages []string
	url := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/ethereum/address/"+testEthWallet+"/transactions", r.URL.Path)
		pages = append(pages, r.URL.Query().Get("page"))
		writeJSON(t, w, map[string]interface{}{
			"transactions": []map[string]interface{}{
				{"id": "0xa" + r.URL.Query().Get("page"), "status": "completed"},
				{"id": "0xb" + r.URL.Query().Get("page"), "status": "failed"},
			},
			"has_next": true,
		})
	})

	out, err := runApp(t, "--api-url", url, "--api-key", "test-key", "--json",
		"transactions", "-c", "eth", "--depth", "2", "--limit", "2",
		"--filter", `.status == "completed"`, testEthWallet)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, pages)

	var txns []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &txns))
	require.Len(t, txns, 2)
	assert.Equal(t, "0xa1", txns[0]["id"])
	assert.Equal(t, "0xa2", txns[1]["id"])
}

func TestTransactionsCommand_InvalidFilter(t *testing.T) {
	clearEnv(t)
	_, err := runApp(t, "--api-url", "http://unused", "--api-key", "k",
		"transactions", "-c", "eth", "--filter", ".status ==", testEthWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid jq filter")
}

func TestCountCommand(t *testing.T) {
	clearEnv(t)
	url := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/solana/address/11111111111111111111111111111111/transactions/count", r.URL.Path)
		writeJSON(t, w, map[string]interface{}{"total_txs": 42})
	})

	out, err := runApp(t, "--api-url", url, "--api-key", "test-key", "count", "-c", "sol", "11111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestTransactionCommand_BadResponse(t *testing.T) {
	clearEnv(t)
	url := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	})

	_, err := runApp(t, "--api-url", url, "--api-key", "test-key", "transaction", "-c", "eth", "0xdead")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, client.StatusCode(err))
}

func TestAPICommands_RequireCredentials(t *testing.T) {
	clearEnv(t)

	_, err := runApp(t, "balances", "-c", "eth", testEthWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api-url is required")

	_, err = runApp(t, "--api-url", "http://localhost", "balances", "-c", "eth", testEthWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api-key is required")
}

func TestValidateCommand(t *testing.T) {
	clearEnv(t)

	out, err := runApp(t, "validate", "-c", "ethereum", testEthWallet)
	require.NoError(t, err)
	assert.Contains(t, out, "valid ethereum address")

	_, err = runApp(t, "validate", "-c", "sol", testEthWallet)
	assert.Error(t, err)

	_, err = runApp(t, "validate", "-c", "btc", testEthWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported currency")
}

func TestFormatAssetBalance(t *testing.T) {
	tests := []struct {
		name  string
		asset client.Object
		want  string
	}{
		{"scaled by contract decimals", client.Object{"balance": "1234500000", "contract_decimals": float64(9)}, "1.2345"},
		{"decimals as string", client.Object{"balance": "100", "decimals": "2"}, "1"},
		{"numeric balance", client.Object{"balance": float64(5000), "contract_decimals": float64(3)}, "5"},
		{"no decimals", client.Object{"balance": "77"}, "77"},
		{"missing balance", client.Object{}, "0"},
		{"unparseable balance", client.Object{"balance": "n/a", "decimals": float64(2)}, "n/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAssetBalance(tt.asset))
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel(""))
}

func TestVersionCommand(t *testing.T) {
	version = "1.0.0"
	commit = "abc123"
	date = "2026-10-10"

	out, err := runApp(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: 1.0.0")
	assert.Contains(t, out, "Commit:  abc123")
}
