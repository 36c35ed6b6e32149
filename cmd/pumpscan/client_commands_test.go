package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientWalletCommand_JSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/wallets/"+testWallet, r.URL.Path)
		w.Write([]byte(`{"address": "` + testWallet + `", "total_losses": "3.5", "rank": 2, "participants": 9}`))
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "--json", "client", "wallet", testWallet)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, testWallet, got["address"])
	assert.Equal(t, float64(2), got["rank"])
}

func TestClientWalletCommand_NotScanned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "wallet not found: start a scan first"}`))
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "client", "wallet", testWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not been scanned")
}

func TestClientEventsCommand_JQ(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"events": [
			{"signature": "a", "amount": "2", "kind": "loss"},
			{"signature": "b", "amount": "1", "kind": "gain"},
			{"signature": "c", "amount": "0.2", "kind": "loss"}
		], "count": 3, "total": 3}`))
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "--json",
		"client", "events", "--limit", "25", "--jq", `.kind == "loss"`, testWallet)
	require.NoError(t, err)

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0]["signature"])
	assert.Equal(t, "c", got[1]["signature"])
}

func TestClientScanCommand_Wait(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/scans":
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"address": "` + testWallet + `", "workflow_id": "scan-wallet-x"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/scans/"+testWallet:
			if polls.Add(1) < 3 {
				w.Write([]byte(`{"workflow_id": "scan-wallet-x", "status": "Running"}`))
				return
			}
			w.Write([]byte(`{"workflow_id": "scan-wallet-x", "status": "Completed",
				"result": {"report": {"summary": {"total_losses": "4", "events": 5}, "new_events": 5, "rank": 1, "participants": 1}}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "client", "scan", "--wait", "--poll-interval", "5ms", testWallet)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
	assert.Contains(t, out, "Status:      Completed")
	assert.Contains(t, out, "Losses:      4.0000 SOL")
	assert.Contains(t, out, "Rank:        1 of 1")
}

func TestClientScanCommand_WaitFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"workflow_id": "scan-wallet-x"}`))
			return
		}
		w.Write([]byte(`{"workflow_id": "scan-wallet-x", "status": "Failed", "error": "failed to sync wallet: boom"}`))
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "client", "scan", "--wait", "--poll-interval", "5ms", testWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan failed: failed to sync wallet: boom")
}

func TestClientCommands_RequireAddress(t *testing.T) {
	_, err := runApp(t, "client", "wallet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet address is required")
}

func TestClientLeaderboardCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/leaderboard", r.URL.Path)
		w.Write([]byte(`{"entries": [{"rank": 1, "address": "` + testWallet + `", "total_losses": "10", "biggest_loss": "6", "total_transactions": 12}]}`))
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "client", "leaderboard")
	require.NoError(t, err)
	assert.Contains(t, out, "RANK")
	assert.Contains(t, out, testWallet)
	assert.Contains(t, out, "10.0000")
}
