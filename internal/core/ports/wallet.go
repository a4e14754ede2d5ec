package ports

import (
	"context"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

// DepositTxInputs bundles what one peer contributes to the multisig deposit
// transaction.
type DepositTxInputs struct {
	Inputs         []domain.RawInput
	ChangeValue    uint64
	ChangeAddress  string
	MultiSigPubKey []byte
}

// WalletService is the engine's view of the wallet and transaction layer.
// Transaction construction and signing internals stay behind this port; the
// engine only cares about success or failure of each call.
type WalletService interface {
	// CreateAndPublishFeeTx creates, signs and broadcasts the taker fee
	// transaction and returns its txid. This is a fund-moving call: the
	// engine must never invoke it twice for the same trade.
	CreateAndPublishFeeTx(ctx context.Context, tradeID string, feeAmount uint64) (string, error)

	// ReserveFundsForTrade locks the funds needed for the trade so they
	// cannot be double-spent by another trade while the protocol runs.
	ReserveFundsForTrade(ctx context.Context, tradeID string, amount uint64) error
	// ReleaseReservedFunds returns a trade's reservation to the available
	// pool. Safe to call when nothing is reserved.
	ReleaseReservedFunds(ctx context.Context, tradeID string) error

	// CreateDepositTxInputs selects and returns this wallet's contribution
	// to the deposit transaction, including the fresh multisig pubkey.
	CreateDepositTxInputs(ctx context.Context, tradeID string, fundsNeeded uint64) (*DepositTxInputs, error)
	// CreateAndSignDepositTx builds the multisig deposit transaction from
	// both contributions and signs this wallet's inputs. Returns the raw tx
	// and its txid.
	CreateAndSignDepositTx(ctx context.Context, tradeID string, mine, peers *DepositTxInputs) ([]byte, string, error)

	// SignPayoutTx produces this wallet's signature over the payout
	// transaction spending the deposit identified by depositTxID, committing
	// to the contract hash.
	SignPayoutTx(ctx context.Context, tradeID, depositTxID string, contractHash []byte) ([]byte, error)
	// FinalizePayoutTx combines the local key with the peer's payout
	// signature into a broadcastable payout transaction.
	FinalizePayoutTx(ctx context.Context, tradeID, depositTxID string, peerSignature, contractHash []byte) ([]byte, string, error)

	// BroadcastTx publishes a raw transaction and returns its txid.
	// Broadcasting an already known transaction is not an error.
	BroadcastTx(ctx context.Context, rawTx []byte) (string, error)
	// GetTxConfirmations returns the confirmation depth of a transaction,
	// zero if known but unconfirmed, an error if the transaction is unknown.
	GetTxConfirmations(ctx context.Context, txID string) (uint32, error)
	// WatchTxConfirmations invokes onConfirmed exactly once when the
	// transaction reaches the required depth. The callback may fire on any
	// goroutine; callers marshal it onto their own event queue.
	WatchTxConfirmations(ctx context.Context, txID string, required uint32, onConfirmed func(txID string)) error
}
