package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

func newDisputeTrade(state domain.State) (*domain.Trade, *domain.Offer) {
	offer := &domain.Offer{
		ID:                "offer-1",
		ResolverAddresses: testResolvers,
	}
	trade := domain.NewTrade(offer, domain.RoleBuyer, domain.InitiatorTaker)
	trade.State = state
	return trade, offer
}

func TestEscalateDisputeMediationFirst(t *testing.T) {
	t.Parallel()

	trade, offer := newDisputeTrade(domain.StateBuyerSentPaymentStartedMessage)

	resolver, err := EscalateDispute(trade, offer, testResolvers, true)
	require.NoError(t, err)
	require.Contains(t, testResolvers, resolver)
	require.Equal(t, domain.DisputeStateMediationRequested, trade.DisputeState)

	// a duplicate request is a no-op returning the same resolver
	again, err := EscalateDispute(trade, offer, testResolvers, true)
	require.NoError(t, err)
	require.Equal(t, resolver, again)
	require.Equal(t, domain.DisputeStateMediationRequested, trade.DisputeState)

	// after a failed mediation round the next request escalates
	_, err = trade.CloseMediation()
	require.NoError(t, err)

	again, err = EscalateDispute(trade, offer, testResolvers, true)
	require.NoError(t, err)
	require.Equal(t, resolver, again)
	require.Equal(t, domain.DisputeStateArbitrationRequested, trade.DisputeState)
}

func TestEscalateDisputeRefundAsLastResort(t *testing.T) {
	t.Parallel()

	trade, offer := newDisputeTrade(domain.StateDepositConfirmedOnChain)

	resolver, err := EscalateDispute(trade, offer, testResolvers, false)
	require.NoError(t, err)
	require.Equal(t, domain.DisputeStateArbitrationRequested, trade.DisputeState)

	// an unresponsive arbitration round escalates to the refund request
	again, err := EscalateDispute(trade, offer, testResolvers, false)
	require.NoError(t, err)
	require.Equal(t, resolver, again)
	require.Equal(t, domain.DisputeStateRefundRequested, trade.DisputeState)

	// the ladder ends here, further requests change nothing
	_, err = EscalateDispute(trade, offer, testResolvers, false)
	require.NoError(t, err)
	require.Equal(t, domain.DisputeStateRefundRequested, trade.DisputeState)
}

func TestEscalateDisputeMediationDisabled(t *testing.T) {
	t.Parallel()

	trade, offer := newDisputeTrade(domain.StateDepositConfirmedOnChain)

	_, err := EscalateDispute(trade, offer, testResolvers, false)
	require.NoError(t, err)
	require.Equal(t, domain.DisputeStateArbitrationRequested, trade.DisputeState)
}

func TestEscalateDisputeReusesSelectedResolver(t *testing.T) {
	t.Parallel()

	trade, offer := newDisputeTrade(domain.StateDepositConfirmedOnChain)
	_, err := trade.SelectResolver("resolver-2")
	require.NoError(t, err)

	resolver, err := EscalateDispute(trade, offer, testResolvers, true)
	require.NoError(t, err)
	require.Equal(t, domain.NodeAddress("resolver-2"), resolver)
}

func TestEscalateDisputeBeforeDepositConfirmed(t *testing.T) {
	t.Parallel()

	trade, offer := newDisputeTrade(domain.StateTakerPublishedDepositTx)

	_, err := EscalateDispute(trade, offer, testResolvers, true)
	require.ErrorIs(t, err, domain.ErrDisputeNotOpenable)
	require.Equal(t, domain.DisputeStateNone, trade.DisputeState)
}

func TestEscalateDisputeNoEligibleResolver(t *testing.T) {
	t.Parallel()

	trade, offer := newDisputeTrade(domain.StateDepositConfirmedOnChain)

	_, err := EscalateDispute(trade, offer, []domain.NodeAddress{"unknown"}, true)
	require.ErrorIs(t, err, domain.ErrNoEligibleResolver)
}

func TestRevertForPaymentResendHelper(t *testing.T) {
	t.Parallel()

	trade, _ := newDisputeTrade(domain.StateBuyerSentPaymentStartedMessage)
	trade.DisputeState = domain.DisputeStateMediationRequested

	require.NoError(t, RevertForPaymentResend(trade))
	require.Equal(t, domain.StateDepositConfirmedOnChain, trade.State)

	// outside mediation the helper refuses
	trade.DisputeState = domain.DisputeStateNone
	trade.State = domain.StateBuyerSentPaymentStartedMessage
	require.ErrorIs(t, RevertForPaymentResend(trade), domain.ErrTradeInvalidStateTransition)
}
