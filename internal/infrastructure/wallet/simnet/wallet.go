package simnet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/thanhpk/randstr"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
	"github.com/peerex-network/peerex-daemon/internal/core/ports"
)

// Chain is the simulated chain shared by all simnet wallets of one
// deployment: a transaction broadcast by one node is visible to every other
// node, like on a real network.
type Chain struct {
	confirmInterval time.Duration

	lock      sync.Mutex
	broadcast map[string]time.Time
	rawTxs    map[string]string
}

// NewChain returns a chain confirming transactions after the given interval.
func NewChain(confirmInterval time.Duration) *Chain {
	return &Chain{
		confirmInterval: confirmInterval,
		broadcast:       make(map[string]time.Time),
		rawTxs:          make(map[string]string),
	}
}

// publish records the tx as broadcast. Re-publishing the same raw tx yields
// the same txid and keeps the original broadcast time.
func (c *Chain) publish(raw string) string {
	txID := txIDOf(raw)

	c.lock.Lock()
	defer c.lock.Unlock()
	if _, ok := c.broadcast[txID]; !ok {
		c.broadcast[txID] = time.Now()
		c.rawTxs[txID] = raw
	}
	return txID
}

func (c *Chain) confirmations(txID string) (uint32, bool) {
	c.lock.Lock()
	publishedAt, ok := c.broadcast[txID]
	c.lock.Unlock()
	if !ok {
		return 0, false
	}
	if time.Since(publishedAt) < c.confirmInterval {
		return 0, true
	}
	return 1 + uint32(time.Since(publishedAt)/c.confirmInterval-1), true
}

// Wallet simulates the wallet layer for local development and integration
// tests: transactions are fabricated and broadcast to the shared in-memory
// chain. The call surface and its failure modes match the production wallet
// port, so the protocol above cannot tell the difference.
type Wallet struct {
	chain *Chain

	lock         sync.Mutex
	reservations map[string]uint64
}

// NewWallet returns a simnet wallet attached to the given chain.
func NewWallet(chain *Chain) *Wallet {
	return &Wallet{
		chain:        chain,
		reservations: make(map[string]uint64),
	}
}

var _ ports.WalletService = (*Wallet)(nil)

func (w *Wallet) CreateAndPublishFeeTx(
	ctx context.Context, tradeID string, feeAmount uint64,
) (string, error) {
	raw := fmt.Sprintf("feetx:%s:%d:%s", tradeID, feeAmount, randstr.Hex(8))
	return w.chain.publish(raw), nil
}

func (w *Wallet) ReserveFundsForTrade(
	ctx context.Context, tradeID string, amount uint64,
) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.reservations[tradeID] = amount
	return nil
}

func (w *Wallet) ReleaseReservedFunds(ctx context.Context, tradeID string) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	delete(w.reservations, tradeID)
	return nil
}

func (w *Wallet) CreateDepositTxInputs(
	ctx context.Context, tradeID string, fundsNeeded uint64,
) (*ports.DepositTxInputs, error) {
	multiSigKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &ports.DepositTxInputs{
		Inputs: []domain.RawInput{
			{TxID: newTxID(), Index: 0, Value: fundsNeeded + 1000},
		},
		ChangeValue:    1000,
		ChangeAddress:  "simnet1" + randstr.Hex(16),
		MultiSigPubKey: multiSigKey.PubKey().SerializeCompressed(),
	}, nil
}

func (w *Wallet) CreateAndSignDepositTx(
	ctx context.Context, tradeID string, mine, peers *ports.DepositTxInputs,
) ([]byte, string, error) {
	if len(mine.Inputs) == 0 || len(peers.Inputs) == 0 {
		return nil, "", fmt.Errorf("deposit tx needs inputs from both sides")
	}
	raw := fmt.Sprintf("deposittx:%s:%s:%s",
		tradeID, mine.Inputs[0].TxID, peers.Inputs[0].TxID)
	return []byte(raw), txIDOf(raw), nil
}

func (w *Wallet) SignPayoutTx(
	ctx context.Context, tradeID, depositTxID string, contractHash []byte,
) ([]byte, error) {
	sig := sha256.Sum256([]byte(
		"payoutsig:" + tradeID + ":" + depositTxID + ":" + hex.EncodeToString(contractHash)))
	return sig[:], nil
}

func (w *Wallet) FinalizePayoutTx(
	ctx context.Context, tradeID, depositTxID string, peerSignature, contractHash []byte,
) ([]byte, string, error) {
	if len(peerSignature) == 0 {
		return nil, "", fmt.Errorf("missing peer payout signature")
	}
	raw := fmt.Sprintf("payouttx:%s:%s", tradeID, depositTxID)
	return []byte(raw), txIDOf(raw), nil
}

func (w *Wallet) BroadcastTx(ctx context.Context, rawTx []byte) (string, error) {
	return w.chain.publish(string(rawTx)), nil
}

func (w *Wallet) GetTxConfirmations(ctx context.Context, txID string) (uint32, error) {
	confirmations, known := w.chain.confirmations(txID)
	if !known {
		return 0, fmt.Errorf("tx %s not found", txID)
	}
	return confirmations, nil
}

// WatchTxConfirmations polls the chain until the tx reaches the required
// depth. A tx unknown at watch time is fine: the peer may broadcast it a
// moment later.
func (w *Wallet) WatchTxConfirmations(
	ctx context.Context, txID string, required uint32, onConfirmed func(txID string),
) error {
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				confirmations, known := w.chain.confirmations(txID)
				if known && confirmations >= required {
					onConfirmed(txID)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func txIDOf(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newTxID() string {
	return txIDOf(randstr.Hex(32))
}
