// Package client is the HTTP client for the pumpscan service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ScanStarted is returned when a scan is accepted.
type ScanStarted struct {
	Address    string `json:"address"`
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	StatusURL  string `json:"status_url"`
	StreamURL  string `json:"stream_url"`
}

// Summary holds a wallet's aggregate gains and losses in SOL.
type Summary struct {
	TotalLosses decimal.Decimal `json:"total_losses"`
	TotalGains  decimal.Decimal `json:"total_gains"`
	NetResult   decimal.Decimal `json:"net_result"`
	BiggestLoss decimal.Decimal `json:"biggest_loss"`
	BiggestGain decimal.Decimal `json:"biggest_gain"`
	Losses      int             `json:"losses"`
	Gains       int             `json:"gains"`
	Events      int             `json:"events"`
}

// Report describes one completed wallet sync.
type Report struct {
	Address      string    `json:"address"`
	Summary      Summary   `json:"summary"`
	Incremental  bool      `json:"incremental"`
	Signatures   int       `json:"signatures"`
	NewEvents    int       `json:"new_events"`
	Rank         int       `json:"rank"`
	Participants int       `json:"participants"`
	SyncedAt     time.Time `json:"synced_at"`
}

// ScanStatus is the state of a wallet's latest scan.
type ScanStatus struct {
	WorkflowID string     `json:"workflow_id"`
	RunID      string     `json:"run_id"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	Result     *struct {
		Report *Report `json:"report,omitempty"`
	} `json:"result,omitempty"`
	Error string `json:"error,omitempty"`
}

// Report returns the sync report once the scan has completed.
func (s *ScanStatus) Report() *Report {
	if s.Result == nil {
		return nil
	}
	return s.Result.Report
}

// Wallet is a wallet's cached aggregates and leaderboard position.
type Wallet struct {
	Address           string          `json:"address"`
	TotalLosses       decimal.Decimal `json:"total_losses"`
	TotalGains        decimal.Decimal `json:"total_gains"`
	NetResult         decimal.Decimal `json:"net_result"`
	TotalTransactions int             `json:"total_transactions"`
	BiggestLoss       decimal.Decimal `json:"biggest_loss"`
	BiggestGain       decimal.Decimal `json:"biggest_gain"`
	LastSyncSignature *string         `json:"last_sync_signature,omitempty"`
	LastSyncAt        *time.Time      `json:"last_sync_at,omitempty"`
	LastUpdated       time.Time       `json:"last_updated"`
	// Rank is nil until the wallet has recorded a loss.
	Rank         *int `json:"rank"`
	Participants int  `json:"participants"`
}

// Event is one classified pump.fun transaction.
type Event struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	Timestamp time.Time       `json:"timestamp"`
	Amount    decimal.Decimal `json:"amount"`
	Lamports  int64           `json:"lamports"`
	Kind      string          `json:"kind"`
	Success   bool            `json:"success"`
}

// EventPage is one page of a wallet's cached events.
type EventPage struct {
	Address string  `json:"address"`
	Events  []Event `json:"events"`
	Count   int     `json:"count"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// LeaderboardEntry is one wallet on the losses leaderboard.
type LeaderboardEntry struct {
	Rank              int             `json:"rank"`
	Address           string          `json:"address"`
	TotalLosses       decimal.Decimal `json:"total_losses"`
	BiggestLoss       decimal.Decimal `json:"biggest_loss"`
	TotalTransactions int             `json:"total_transactions"`
	LastUpdated       time.Time       `json:"last_updated"`
}

// LeaderboardStats summarizes the whole leaderboard.
type LeaderboardStats struct {
	TotalLosses       decimal.Decimal `json:"total_losses"`
	Participants      int             `json:"participants"`
	AverageLoss       decimal.Decimal `json:"average_loss"`
	BiggestLoss       decimal.Decimal `json:"biggest_loss"`
	TotalTransactions int64           `json:"total_transactions"`
	LastUpdated       *time.Time      `json:"last_updated,omitempty"`
}

// Client is the HTTP client for the pumpscan service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new pumpscan client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// StartScan asks the server to scan a wallet. If a scan for the wallet is
// already running, the server returns that one. force drops the wallet's
// cache first.
func (c *Client) StartScan(ctx context.Context, address string, force bool) (*ScanStarted, error) {
	body := map[string]interface{}{
		"address": address,
		"force":   force,
	}

	var out ScanStarted
	if err := c.do(ctx, http.MethodPost, "/api/v1/scans", body, http.StatusAccepted, &out); err != nil {
		return nil, err
	}

	c.logger.Debug("scan started", "address", address, "workflow_id", out.WorkflowID)
	return &out, nil
}

// GetScan returns the status of the wallet's latest scan.
func (c *Client) GetScan(ctx context.Context, address string) (*ScanStatus, error) {
	var out ScanStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/scans/"+url.PathEscape(address), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetWallet returns a wallet's cached stats and rank.
func (c *Client) GetWallet(ctx context.Context, address string) (*Wallet, error) {
	var out Wallet
	if err := c.do(ctx, http.MethodGet, "/api/v1/wallets/"+url.PathEscape(address), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListEvents returns one page of a wallet's cached events, newest first.
// Zero limit uses the server default.
func (c *Client) ListEvents(ctx context.Context, address string, limit, offset int) (*EventPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/v1/wallets/" + url.PathEscape(address) + "/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out EventPage
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Leaderboard returns the wallets with the biggest losses.
// Zero limit uses the server default.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	path := "/api/v1/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var out struct {
		Entries []LeaderboardEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// LeaderboardStats returns the leaderboard totals.
func (c *Client) LeaderboardStats(ctx context.Context) (*LeaderboardStats, error) {
	var out LeaderboardStats
	if err := c.do(ctx, http.MethodGet, "/api/v1/leaderboard/stats", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearCache drops a wallet's cached events and returns how many were deleted.
func (c *Client) ClearCache(ctx context.Context, address string) (int64, error) {
	var out struct {
		EventsDeleted int64 `json:"events_deleted"`
	}
	path := "/api/v1/wallets/" + url.PathEscape(address) + "/cache"
	if err := c.do(ctx, http.MethodDelete, path, nil, http.StatusOK, &out); err != nil {
		return 0, err
	}

	c.logger.Debug("wallet cache cleared", "address", address, "events_deleted", out.EventsDeleted)
	return out.EventsDeleted, nil
}

// Health checks that the server is up and can reach its database.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, nil)
}

// do sends a request and decodes a wantStatus response into out.
func (c *Client) do(ctx context.Context, method, path string, in interface{}, wantStatus int, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
}

// StatusError is returned when the server answers with an unexpected status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
