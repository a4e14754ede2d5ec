package protocol

import "github.com/peerex-network/peerex-daemon/internal/core/domain"

// Event identifies one protocol trigger: an incoming trade message, a
// UI-confirmed action, or the deposit confirmation from the chain.
type Event int

const (
	EventTakeOffer Event = iota
	EventDepositInputsRequestMsg
	EventDepositInputsResponseMsg
	EventDepositTxMsg
	EventDepositConfirmed
	EventPaymentStartedUI
	EventPaymentStartedMsg
	EventPaymentReceivedUI
	EventPayoutPublishedMsg
)

func (e Event) String() string {
	switch e {
	case EventTakeOffer:
		return "TakeOffer"
	case EventDepositInputsRequestMsg:
		return "DepositInputsRequestMsg"
	case EventDepositInputsResponseMsg:
		return "DepositInputsResponseMsg"
	case EventDepositTxMsg:
		return "DepositTxMsg"
	case EventDepositConfirmed:
		return "DepositConfirmed"
	case EventPaymentStartedUI:
		return "PaymentStartedUI"
	case EventPaymentStartedMsg:
		return "PaymentStartedMsg"
	case EventPaymentReceivedUI:
		return "PaymentReceivedUI"
	default:
		return "PayoutPublishedMsg"
	}
}

func eventForMessage(t domain.MessageType) (Event, bool) {
	switch t {
	case domain.MessageTypeDepositInputsRequest:
		return EventDepositInputsRequestMsg, true
	case domain.MessageTypeDepositInputsResponse:
		return EventDepositInputsResponseMsg, true
	case domain.MessageTypeDepositTx:
		return EventDepositTxMsg, true
	case domain.MessageTypePaymentStarted:
		return EventPaymentStartedMsg, true
	case domain.MessageTypePayoutTxPublished:
		return EventPayoutPublishedMsg, true
	default:
		return 0, false
	}
}

// allowedPhases guards every event against the trade's current phase.
// Duplicate deliveries of an already processed message fall outside the
// allowed set and are dropped without advancing state.
var allowedPhases = map[Event][]domain.Phase{
	EventTakeOffer:                {domain.PhasePreparation},
	EventDepositInputsRequestMsg:  {domain.PhasePreparation},
	EventDepositInputsResponseMsg: {domain.PhaseTakerFeePublished},
	EventDepositTxMsg:             {domain.PhaseTakerFeePublished},
	EventDepositConfirmed:         {domain.PhaseDepositPublished},
	EventPaymentStartedUI:         {domain.PhaseDepositConfirmed},
	EventPaymentStartedMsg:        {domain.PhaseDepositPublished, domain.PhaseDepositConfirmed},
	EventPaymentReceivedUI:        {domain.PhasePaymentSent},
	EventPayoutPublishedMsg:       {domain.PhasePaymentSent},
}

// armTimeoutAfter lists the pipelines that end by sending a request whose
// response is expected within the step timeout window.
var armTimeoutAfter = map[Event]struct{}{
	EventDepositInputsRequestMsg: {},
}

// watchDepositAfter lists the pipelines after which the deposit
// confirmation listener must be armed.
var watchDepositAfter = map[Event]struct{}{
	EventDepositInputsResponseMsg: {},
	EventDepositTxMsg:             {},
}

type variantKey struct {
	role      domain.Role
	initiator domain.Initiator
}

// variantPipelines is the per-role lookup table replacing a four-way class
// hierarchy: each of the four role combinations owns its ordered task list
// per event, composed from the shared maker/taker and buyer/seller sets.
var variantPipelines = map[variantKey]map[Event][]Task{}

func init() {
	takerPipelines := map[Event][]Task{
		EventTakeOffer: {
			taskSelectDisputeResolver,
			taskReserveTradeFunds,
			taskCreateAndPublishTakerFeeTx,
			taskCreateDepositTxInputs,
			taskSendDepositInputsRequest,
		},
		EventDepositInputsResponseMsg: {
			taskProcessDepositInputsResponse,
			taskTakerVerifyAndSignContract,
			taskTakerCreateAndSignDepositTx,
			taskSendDepositTxMessage,
			taskPublishDepositTx,
		},
	}
	makerPipelines := map[Event][]Task{
		EventDepositInputsRequestMsg: {
			taskProcessDepositInputsRequest,
			taskVerifyPeerAccount,
			taskVerifyTakerFeePayment,
			taskSelectDisputeResolver,
			taskReserveTradeFunds,
			taskMakerCreateDepositTxInputs,
			taskMakerCreateAndSignContract,
			taskSendDepositInputsResponse,
		},
		EventDepositTxMsg: {
			taskProcessDepositTxMessage,
		},
	}
	buyerPipelines := map[Event][]Task{
		EventPaymentStartedUI: {
			taskApplyPaymentInitiated,
			taskCreatePayoutTxSignature,
			taskSendPaymentStartedMessage,
		},
		EventPayoutPublishedMsg: {
			taskProcessPayoutTxPublishedMessage,
			taskCompleteTrade,
		},
	}
	sellerPipelines := map[Event][]Task{
		EventPaymentStartedMsg: {
			taskProcessPaymentStartedMessage,
		},
		EventPaymentReceivedUI: {
			taskApplyPaymentReceipt,
			taskSignAndFinalizePayoutTx,
			taskPublishPayoutTx,
			taskSendPayoutTxPublishedMessage,
			taskCompleteTrade,
		},
	}
	shared := map[Event][]Task{
		EventDepositConfirmed: {
			taskApplyDepositConfirmed,
		},
	}

	compose := func(sets ...map[Event][]Task) map[Event][]Task {
		out := map[Event][]Task{}
		for _, set := range sets {
			for ev, tasks := range set {
				out[ev] = tasks
			}
		}
		return out
	}

	variantPipelines[variantKey{domain.RoleBuyer, domain.InitiatorTaker}] =
		compose(shared, takerPipelines, buyerPipelines)
	variantPipelines[variantKey{domain.RoleSeller, domain.InitiatorTaker}] =
		compose(shared, takerPipelines, sellerPipelines)
	variantPipelines[variantKey{domain.RoleBuyer, domain.InitiatorMaker}] =
		compose(shared, makerPipelines, buyerPipelines)
	variantPipelines[variantKey{domain.RoleSeller, domain.InitiatorMaker}] =
		compose(shared, makerPipelines, sellerPipelines)
}

func tasksFor(role domain.Role, initiator domain.Initiator, event Event) ([]Task, bool) {
	pipelines, ok := variantPipelines[variantKey{role, initiator}]
	if !ok {
		return nil, false
	}
	tasks, ok := pipelines[event]
	return tasks, ok
}
