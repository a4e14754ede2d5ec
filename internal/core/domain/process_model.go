package domain

import "encoding/json"

// TradingPeer mirrors the counterparty's protocol-relevant fields. It is
// populated incrementally as verified messages arrive and persisted with the
// trade. A partially populated peer after a failed deserialization is
// treated as unknown, never as trusted defaults.
type TradingPeer struct {
	NodeAddress           NodeAddress
	PubKey                []byte
	AccountID             string
	PaymentAccountPayload json.RawMessage
	MultiSigPubKey        []byte
	RawInputs             []RawInput
	ChangeOutputValue     uint64
	ChangeOutputAddress   string
	ContractAsJSON        []byte
	ContractSignature     []byte
	// FeeTxID is the peer's taker fee transaction, verified before the
	// contract is signed.
	FeeTxID string
	// PayoutTxSignature is the peer's signature over the payout tx,
	// received with the payment-started message.
	PayoutTxSignature []byte
}

// HasPubKey reports whether the peer's message-signing pubkey is already on
// file for this trade.
func (p *TradingPeer) HasPubKey() bool {
	return p != nil && len(p.PubKey) > 0
}

// ProcessModel is the mutable working state threaded through the task
// pipelines of one trade. Cryptographic intermediates are persisted so that
// an interrupted pipeline can be resumed after a restart; the message being
// processed is transient by nature.
type ProcessModel struct {
	OfferID string

	// TradeMessage is the inbound message the current pipeline processes.
	TradeMessage TradeMessage `json:"-"`

	// TempPeerNodeAddress holds the sender address of an incoming message
	// before its signature is verified. It is promoted to the trade's
	// trusted peer address only after verification succeeds and must never
	// feed a fund-affecting decision before that.
	TempPeerNodeAddress NodeAddress

	PreparedDepositTx   []byte
	RawInputs           []RawInput
	ChangeOutputValue   uint64
	ChangeOutputAddress string
	MyMultiSigPubKey    []byte
	PayoutTxSignature   []byte
	FundsNeeded         uint64
	FundsReserved       bool

	Peer *TradingPeer
}

// NewProcessModel returns the working state for a fresh trade.
func NewProcessModel(offerID string) *ProcessModel {
	return &ProcessModel{
		OfferID: offerID,
		Peer:    &TradingPeer{},
	}
}

// TradingPeer returns the peer mirror, allocating it if the model was
// deserialized from an older record without one.
func (m *ProcessModel) TradingPeer() *TradingPeer {
	if m.Peer == nil {
		m.Peer = &TradingPeer{}
	}
	return m.Peer
}

// ClearTransients drops the large in-flight blobs once they are no longer
// needed for reconstruction. Memory hygiene only, never required for
// correctness.
func (m *ProcessModel) ClearTransients() {
	m.TradeMessage = nil
	m.PreparedDepositTx = nil
	m.RawInputs = nil
}
