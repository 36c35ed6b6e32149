package solana

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

var (
	// ErrInvalidAddress is returned before any RPC call when a wallet address
	// is not a valid base58 public key.
	ErrInvalidAddress = errors.New("invalid wallet address")

	// ErrTransactionNotFound is returned when the provider has no record of a
	// signature, for example because it is not yet finalized or was pruned.
	ErrTransactionNotFound = rpc.ErrNotFound
)

// ParseWallet validates a base58 wallet address.
func ParseWallet(address string) (solana.PublicKey, error) {
	if strings.TrimSpace(address) == "" {
		return solana.PublicKey{}, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return pk, nil
}

// IsRateLimited reports whether err is the provider telling us to slow down.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code == http.StatusTooManyRequests {
		return true
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == http.StatusTooManyRequests {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests")
}

// IsNotFound reports whether err means the transaction does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, rpc.ErrNotFound)
}
