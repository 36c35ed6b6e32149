package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/brojonat/pumpscan/service/db"
	"github.com/brojonat/pumpscan/service/solana"
	"github.com/brojonat/pumpscan/service/temporal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer

	defaultEventsLimit      = 100
	maxEventsLimit          = 1000
	defaultLeaderboardLimit = 100
	maxLeaderboardLimit     = 500
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// handleStartScan returns a handler that starts (or joins) a wallet scan.
// POST /api/v1/scans {"address": "...", "force": false}
func handleStartScan(scans Scans, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Address string `json:"address"`
			Force   bool   `json:"force"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode scan request", "error", err)
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.Address); err != nil {
			logger.Debug("invalid address", "address", req.Address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		workflowID, runID, err := scans.StartScan(r.Context(), temporal.ScanWalletInput{
			Address: req.Address,
			Force:   req.Force,
		})
		if err != nil {
			logger.Error("failed to start scan", "address", req.Address, "error", err)
			writeError(w, "failed to start scan", http.StatusInternalServerError)
			return
		}

		logger.Info("scan started", "address", req.Address, "workflow_id", workflowID, "force", req.Force)

		writeJSON(w, map[string]interface{}{
			"address":     req.Address,
			"workflow_id": workflowID,
			"run_id":      runID,
			"status_url":  "/api/v1/scans/" + req.Address,
			"stream_url":  "/api/v1/stream/scans/" + req.Address,
		}, http.StatusAccepted)
	})
}

// handleGetScan returns a handler that reports a wallet's latest scan.
// GET /api/v1/scans/{address}
func handleGetScan(scans Scans, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		status, err := scans.GetScanResult(r.Context(), address)
		if errors.Is(err, temporal.ErrScanNotFound) {
			writeError(w, "scan not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get scan", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, status, http.StatusOK)
	})
}

// walletResponse is a wallet's cached aggregates plus its leaderboard rank.
type walletResponse struct {
	*db.WalletStats
	// Rank is nil for wallets with no recorded losses.
	Rank         *int `json:"rank"`
	Participants int  `json:"participants"`
}

// handleGetWallet returns a handler that retrieves a wallet's cached stats.
// GET /api/v1/wallets/{address}
func handleGetWallet(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		stats, err := store.GetWalletStats(r.Context(), address)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "wallet not found: start a scan first", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get wallet stats", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := walletResponse{WalletStats: stats}
		rank, err := store.GetWalletRank(r.Context(), address)
		switch {
		case err == nil:
			resp.Rank = &rank.Rank
			resp.Participants = rank.Participants
		case errors.Is(err, db.ErrNotFound):
		default:
			logger.Error("failed to get wallet rank", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, resp, http.StatusOK)
	})
}

// handleListEvents returns a handler that lists a wallet's cached events.
// GET /api/v1/wallets/{address}/events?limit=N&offset=N
func handleListEvents(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		query := r.URL.Query()
		limit, err := parseLimit(query.Get("limit"), defaultEventsLimit, maxEventsLimit)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		offset, err := parseOffset(query.Get("offset"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		events, err := store.ListEvents(r.Context(), address, limit, offset)
		if err != nil {
			logger.Error("failed to list events", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		total, err := store.CountEvents(r.Context(), address)
		if err != nil {
			logger.Error("failed to count events", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []solana.Event{}
		}

		logger.Debug("events listed", "address", address, "count", len(events))

		writeJSON(w, map[string]interface{}{
			"address": address,
			"events":  events,
			"count":   len(events),
			"total":   total,
			"limit":   limit,
			"offset":  offset,
		}, http.StatusOK)
	})
}

// handleClearCache returns a handler that drops a wallet's cached events so
// the next scan starts from the newest signature.
// DELETE /api/v1/wallets/{address}/cache
func handleClearCache(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		deleted, err := store.ClearWalletCache(r.Context(), address)
		if err != nil {
			logger.Error("failed to clear wallet cache", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("wallet cache cleared", "address", address, "events_deleted", deleted)

		writeJSON(w, map[string]interface{}{
			"address":        address,
			"events_deleted": deleted,
		}, http.StatusOK)
	})
}

// handleLeaderboard returns a handler that lists the biggest losers.
// GET /api/v1/leaderboard?limit=N
func handleLeaderboard(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r.URL.Query().Get("limit"), defaultLeaderboardLimit, maxLeaderboardLimit)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		entries, err := store.ListTopLosers(r.Context(), limit)
		if err != nil {
			logger.Error("failed to list leaderboard", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []db.LeaderboardEntry{}
		}

		writeJSON(w, map[string]interface{}{
			"entries": entries,
			"count":   len(entries),
			"limit":   limit,
		}, http.StatusOK)
	})
}

// handleLeaderboardStats returns a handler for the leaderboard totals.
// GET /api/v1/leaderboard/stats
func handleLeaderboardStats(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.GetLeaderboardStats(r.Context())
		if err != nil {
			logger.Error("failed to get leaderboard stats", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, stats, http.StatusOK)
	})
}

// handleHealth reports whether the server can reach its database.
// GET /health
func handleHealth(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			logger.Warn("health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	// Base58 alone admits strings that do not decode to a 32-byte key.
	if _, err := solana.ParseWallet(address); err != nil {
		return errorf("invalid address: not a Solana public key")
	}

	return nil
}

func parseLimit(raw string, def, maxLimit int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errorf("invalid limit parameter: must be an integer")
	}
	if n < 1 {
		return 0, errorf("limit must be at least 1")
	}
	if n > maxLimit {
		return 0, errorf("limit cannot exceed %d", maxLimit)
	}
	return n, nil
}

func parseOffset(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errorf("invalid offset parameter: must be an integer")
	}
	if n < 0 {
		return 0, errorf("offset cannot be negative")
	}
	return n, nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
