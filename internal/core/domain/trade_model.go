package domain

// NodeAddress is the network address of a peer (an onion service address in
// the reference deployment). The engine treats it as an opaque identifier.
type NodeAddress string

// Role tells whether this node buys or sells the base asset in a trade.
type Role int

const (
	RoleBuyer Role = iota
	RoleSeller
)

func (r Role) String() string {
	if r == RoleBuyer {
		return "buyer"
	}
	return "seller"
}

// Initiator tells whether this node posted the offer (maker) or accepted
// it (taker).
type Initiator int

const (
	InitiatorMaker Initiator = iota
	InitiatorTaker
)

func (i Initiator) String() string {
	if i == InitiatorMaker {
		return "maker"
	}
	return "taker"
}

// Phase is the coarse projection of a trade State used for UI display and
// eligibility checks.
type Phase int

const (
	PhasePreparation Phase = iota
	PhaseTakerFeePublished
	PhaseDepositPublished
	PhaseDepositConfirmed
	PhasePaymentSent
	PhasePaymentReceived
	PhasePayoutPublished
	PhaseWithdrawn
)

func (p Phase) String() string {
	switch p {
	case PhasePreparation:
		return "preparation"
	case PhaseTakerFeePublished:
		return "taker_fee_published"
	case PhaseDepositPublished:
		return "deposit_published"
	case PhaseDepositConfirmed:
		return "deposit_confirmed"
	case PhasePaymentSent:
		return "payment_sent"
	case PhasePaymentReceived:
		return "payment_received"
	case PhasePayoutPublished:
		return "payout_published"
	default:
		return "withdrawn"
	}
}

// State is the fine-grained protocol step of a trade. Values are ordered
// along the protocol flow so that a valid trade only ever moves to a higher
// value, with RevertForPaymentResend as the single logged exception.
type State int

const (
	StatePreparation State = iota

	StateTakerPublishedTakerFeeTx
	StateTakerSentDepositInputsRequest
	StateMakerReceivedDepositInputsRequest
	StateMakerSentDepositInputsResponse
	StateTakerReceivedDepositInputsResponse

	StateTakerSentDepositTxMessage
	StateTakerPublishedDepositTx
	StateMakerReceivedDepositTxMessage

	StateDepositConfirmedOnChain

	StateBuyerConfirmedPaymentInitiated
	StateBuyerSentPaymentStartedMessage
	StateSellerReceivedPaymentStartedMessage

	StateSellerConfirmedPaymentReceipt

	StateSellerPublishedPayoutTx
	StateSellerSentPayoutTxPublishedMessage
	StateBuyerReceivedPayoutTxPublishedMessage

	StateWithdrawCompleted
)

// Phase returns the coarse phase a state belongs to.
func (s State) Phase() Phase {
	switch {
	case s == StatePreparation:
		return PhasePreparation
	case s <= StateTakerReceivedDepositInputsResponse:
		return PhaseTakerFeePublished
	case s <= StateMakerReceivedDepositTxMessage:
		return PhaseDepositPublished
	case s == StateDepositConfirmedOnChain:
		return PhaseDepositConfirmed
	case s <= StateSellerReceivedPaymentStartedMessage:
		return PhasePaymentSent
	case s == StateSellerConfirmedPaymentReceipt:
		return PhasePaymentReceived
	case s <= StateBuyerReceivedPayoutTxPublishedMessage:
		return PhasePayoutPublished
	default:
		return PhaseWithdrawn
	}
}

func (s State) String() string {
	switch s {
	case StatePreparation:
		return "PREPARATION"
	case StateTakerPublishedTakerFeeTx:
		return "TAKER_PUBLISHED_TAKER_FEE_TX"
	case StateTakerSentDepositInputsRequest:
		return "TAKER_SENT_DEPOSIT_INPUTS_REQUEST"
	case StateMakerReceivedDepositInputsRequest:
		return "MAKER_RECEIVED_DEPOSIT_INPUTS_REQUEST"
	case StateMakerSentDepositInputsResponse:
		return "MAKER_SENT_DEPOSIT_INPUTS_RESPONSE"
	case StateTakerReceivedDepositInputsResponse:
		return "TAKER_RECEIVED_DEPOSIT_INPUTS_RESPONSE"
	case StateTakerSentDepositTxMessage:
		return "TAKER_SENT_DEPOSIT_TX_MESSAGE"
	case StateTakerPublishedDepositTx:
		return "TAKER_PUBLISHED_DEPOSIT_TX"
	case StateMakerReceivedDepositTxMessage:
		return "MAKER_RECEIVED_DEPOSIT_TX_MESSAGE"
	case StateDepositConfirmedOnChain:
		return "DEPOSIT_CONFIRMED_ON_CHAIN"
	case StateBuyerConfirmedPaymentInitiated:
		return "BUYER_CONFIRMED_PAYMENT_INITIATED"
	case StateBuyerSentPaymentStartedMessage:
		return "BUYER_SENT_PAYMENT_STARTED_MESSAGE"
	case StateSellerReceivedPaymentStartedMessage:
		return "SELLER_RECEIVED_PAYMENT_STARTED_MESSAGE"
	case StateSellerConfirmedPaymentReceipt:
		return "SELLER_CONFIRMED_PAYMENT_RECEIPT"
	case StateSellerPublishedPayoutTx:
		return "SELLER_PUBLISHED_PAYOUT_TX"
	case StateSellerSentPayoutTxPublishedMessage:
		return "SELLER_SENT_PAYOUT_TX_PUBLISHED_MESSAGE"
	case StateBuyerReceivedPayoutTxPublishedMessage:
		return "BUYER_RECEIVED_PAYOUT_TX_PUBLISHED_MESSAGE"
	default:
		return "WITHDRAW_COMPLETED"
	}
}

// DisputeState tracks the escalation of a failed cooperative trade.
// Mediation must precede arbitration unless mediation is disabled for the
// deployment.
type DisputeState int

const (
	DisputeStateNone DisputeState = iota
	DisputeStateMediationRequested
	DisputeStateMediationClosed
	DisputeStateArbitrationRequested
	DisputeStateRefundRequested
	DisputeStateClosed
)

func (d DisputeState) String() string {
	switch d {
	case DisputeStateNone:
		return "NO_DISPUTE"
	case DisputeStateMediationRequested:
		return "MEDIATION_REQUESTED"
	case DisputeStateMediationClosed:
		return "MEDIATION_CLOSED"
	case DisputeStateArbitrationRequested:
		return "ARBITRATION_REQUESTED"
	case DisputeStateRefundRequested:
		return "REFUND_REQUESTED"
	default:
		return "DISPUTE_CLOSED"
	}
}

// RawInput is one unsigned input contributed to the multisig deposit
// transaction by either peer.
type RawInput struct {
	TxID  string
	Index uint32
	Value uint64
}
