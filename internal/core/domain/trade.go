package domain

import (
	"bytes"
	"time"
)

// Trade is the durable aggregate of one escrow trade. It is the source of
// truth for crash recovery: every fund-moving checkpoint (fee published,
// deposit published, payout published) is recorded here before the protocol
// continues.
type Trade struct {
	ID        string
	OfferID   string
	Role      Role
	Initiator Initiator

	// Offer is the read-only snapshot of the offer terms, persisted so a
	// protocol instance can be rebuilt from the trade alone after restart.
	Offer *Offer

	State        State
	DisputeState DisputeState

	PeerNodeAddress NodeAddress

	ContractAsJSON        []byte
	MyContractSignature   []byte
	PeerContractSignature []byte

	TakerFeeTxID string
	DepositTx    []byte
	DepositTxID  string
	PayoutTx     []byte
	PayoutTxID   string

	ResolverAddress NodeAddress

	ErrorMessage string
	CreatedAt    int64

	Model *ProcessModel
}

// NewTrade creates a trade for the given offer. The trade id is derived from
// the offer id so that both peers compute the same id without communication.
func NewTrade(offer *Offer, role Role, initiator Initiator) *Trade {
	return &Trade{
		ID:        TradeIDFromOffer(offer.ID),
		OfferID:   offer.ID,
		Role:      role,
		Initiator: initiator,
		Offer:     offer,
		State:     StatePreparation,
		CreatedAt: time.Now().Unix(),
		Model:     NewProcessModel(offer.ID),
	}
}

// Phase returns the coarse phase of the current state.
func (t *Trade) Phase() Phase {
	return t.State.Phase()
}

// AdvanceState moves the trade to the given state. Re-applying the current
// state is a no-op returning (true, nil) so duplicate message deliveries do
// not double-advance the trade. Moving backward is refused: the only legal
// rewind is RevertForPaymentResend.
func (t *Trade) AdvanceState(next State) (bool, error) {
	if next == t.State {
		return true, nil
	}
	if next < t.State {
		return false, ErrTradeStateRewind
	}
	t.State = next
	return true, nil
}

// RevertForPaymentResend is the single, explicitly named exception to state
// monotonicity: during a reopened mediation the trade is set back to the
// deposit-confirmed step so the payment-started message can be sent again.
// Callers must log the transition.
func (t *Trade) RevertForPaymentResend() (bool, error) {
	if t.DisputeState != DisputeStateMediationRequested &&
		t.DisputeState != DisputeStateMediationClosed {
		return false, ErrTradeInvalidStateTransition
	}
	if t.State.Phase() != PhasePaymentSent {
		return false, ErrTradeInvalidStateTransition
	}
	t.State = StateDepositConfirmedOnChain
	return true, nil
}

// SelectResolver records the deterministically selected dispute resolver.
// The selection is immutable once set; re-applying the same address is a
// no-op so both the take-offer pipeline and a pipeline re-run after restart
// can call it.
func (t *Trade) SelectResolver(addr NodeAddress) (bool, error) {
	if t.ResolverAddress == addr {
		return true, nil
	}
	if t.ResolverAddress != "" {
		return false, ErrTradeResolverAlreadySelected
	}
	t.ResolverAddress = addr
	return true, nil
}

// SetTakerFeeTx records the published taker fee transaction. Once set it can
// never change: the fee tx must not be re-created for the same trade.
func (t *Trade) SetTakerFeeTx(txID string) (bool, error) {
	if t.TakerFeeTxID == txID {
		return true, nil
	}
	if t.TakerFeeTxID != "" {
		return false, ErrTradeTxAlreadyPublished
	}
	t.TakerFeeTxID = txID
	return true, nil
}

// SetDepositTx records the signed multisig deposit transaction. Set-once,
// same rule as the fee tx.
func (t *Trade) SetDepositTx(tx []byte, txID string) (bool, error) {
	if t.DepositTxID == txID && bytes.Equal(t.DepositTx, tx) {
		return true, nil
	}
	if t.DepositTxID != "" {
		return false, ErrTradeTxAlreadyPublished
	}
	t.DepositTx = tx
	t.DepositTxID = txID
	return true, nil
}

// SetPayoutTx records the finalized payout transaction. Set-once.
func (t *Trade) SetPayoutTx(tx []byte, txID string) (bool, error) {
	if t.PayoutTxID == txID && bytes.Equal(t.PayoutTx, tx) {
		return true, nil
	}
	if t.PayoutTxID != "" {
		return false, ErrTradeTxAlreadyPublished
	}
	t.PayoutTx = tx
	t.PayoutTxID = txID
	return true, nil
}

// SetPeerNodeAddress promotes a verified sender address to the trusted peer
// address of the trade.
func (t *Trade) SetPeerNodeAddress(addr NodeAddress) {
	t.PeerNodeAddress = addr
}

// SetErrorMessage records the reason of the first protocol failure. Later
// failures do not overwrite it.
func (t *Trade) SetErrorMessage(msg string) {
	if t.ErrorMessage == "" {
		t.ErrorMessage = msg
	}
}

// RequestMediation opens a mediation dispute. Opening is only allowed once
// the deposit is confirmed; re-requesting while mediation is already open is
// a no-op so a duplicate request never creates a duplicate dispute record.
func (t *Trade) RequestMediation() (bool, error) {
	if t.DisputeState == DisputeStateMediationRequested {
		return true, nil
	}
	if t.DisputeState != DisputeStateNone {
		return false, ErrDisputeStateRewind
	}
	if !t.MayOpenDispute() {
		return false, ErrDisputeNotOpenable
	}
	t.DisputeState = DisputeStateMediationRequested
	return true, nil
}

// CloseMediation records that the mediation round ended without the trade
// completing cooperatively.
func (t *Trade) CloseMediation() (bool, error) {
	if t.DisputeState == DisputeStateMediationClosed {
		return true, nil
	}
	if t.DisputeState != DisputeStateMediationRequested {
		return false, ErrTradeInvalidStateTransition
	}
	t.DisputeState = DisputeStateMediationClosed
	return true, nil
}

// RequestArbitration escalates to arbitration. On deployments with mediation
// enabled arbitration is only reachable after a closed mediation round.
func (t *Trade) RequestArbitration(mediationEnabled bool) (bool, error) {
	if t.DisputeState == DisputeStateArbitrationRequested {
		return true, nil
	}
	if t.DisputeState > DisputeStateArbitrationRequested {
		return false, ErrDisputeStateRewind
	}
	if !t.MayOpenDispute() {
		return false, ErrDisputeNotOpenable
	}
	if mediationEnabled && t.DisputeState != DisputeStateMediationClosed {
		return false, ErrMediationRequired
	}
	t.DisputeState = DisputeStateArbitrationRequested
	return true, nil
}

// RequestRefund escalates past an arbitration round that produced no payout.
// It is the last rung of the dispute ladder before the record can only be
// closed.
func (t *Trade) RequestRefund() (bool, error) {
	if t.DisputeState == DisputeStateRefundRequested {
		return true, nil
	}
	if t.DisputeState > DisputeStateRefundRequested {
		return false, ErrDisputeStateRewind
	}
	if t.DisputeState != DisputeStateArbitrationRequested {
		return false, ErrTradeInvalidStateTransition
	}
	if !t.MayOpenDispute() {
		return false, ErrDisputeNotOpenable
	}
	t.DisputeState = DisputeStateRefundRequested
	return true, nil
}

// CloseDispute marks the dispute process as finished.
func (t *Trade) CloseDispute() (bool, error) {
	if t.DisputeState == DisputeStateClosed {
		return true, nil
	}
	if t.DisputeState == DisputeStateNone {
		return false, ErrTradeInvalidStateTransition
	}
	t.DisputeState = DisputeStateClosed
	return true, nil
}

// MayOpenDispute reports whether the trade passed the point where a dispute
// can be raised: the deposit must be confirmed and the payout not withdrawn.
func (t *Trade) MayOpenDispute() bool {
	return t.Phase() >= PhaseDepositConfirmed && t.Phase() < PhaseWithdrawn
}

// IsFeeCommitted reports whether this peer irreversibly committed funds by
// publishing its taker fee transaction.
func (t *Trade) IsFeeCommitted() bool {
	return t.TakerFeeTxID != ""
}

// IsDepositPublished reports whether the multisig deposit transaction was
// broadcast.
func (t *Trade) IsDepositPublished() bool {
	return t.Phase() >= PhaseDepositPublished && t.DepositTxID != ""
}

// IsPayoutPublished reports whether the payout transaction was broadcast.
func (t *Trade) IsPayoutPublished() bool {
	return t.Phase() >= PhasePayoutPublished
}

// IsCompleted reports whether the trade reached its terminal state.
func (t *Trade) IsCompleted() bool {
	return t.State == StateWithdrawCompleted
}

// ProcessModel returns the working state, restoring it if the trade was
// deserialized from a record without one.
func (t *Trade) ProcessModel() *ProcessModel {
	if t.Model == nil {
		t.Model = NewProcessModel(t.OfferID)
	}
	return t.Model
}
