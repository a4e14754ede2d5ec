package protocol

import (
	log "github.com/sirupsen/logrus"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

// EscalateDispute advances the trade's dispute process by one step: it opens
// mediation when mediation is enabled and not yet attempted, arbitration
// after mediation closed without agreement, and finally a refund request
// when the arbitration round itself produced no payout. It returns the
// resolver to contact. Re-requesting while mediation is open, or once the
// refund rung is reached, is a no-op returning the same resolver, so a
// duplicate request never creates a duplicate dispute record.
func EscalateDispute(
	t *domain.Trade, offer *domain.Offer,
	accepted []domain.NodeAddress, mediationEnabled bool,
) (domain.NodeAddress, error) {
	if !t.MayOpenDispute() {
		return "", domain.ErrDisputeNotOpenable
	}

	resolver := t.ResolverAddress
	if resolver == "" {
		selected, err := SelectResolver(offer.ID, offer.ResolverAddresses, accepted)
		if err != nil {
			return "", err
		}
		if _, err := t.SelectResolver(selected); err != nil {
			return "", err
		}
		resolver = selected
	}

	switch t.DisputeState {
	case domain.DisputeStateNone:
		if mediationEnabled {
			if _, err := t.RequestMediation(); err != nil {
				return "", err
			}
		} else {
			if _, err := t.RequestArbitration(false); err != nil {
				return "", err
			}
		}
	case domain.DisputeStateMediationRequested:
		// already open
	case domain.DisputeStateMediationClosed:
		if _, err := t.RequestArbitration(mediationEnabled); err != nil {
			return "", err
		}
	case domain.DisputeStateArbitrationRequested:
		if _, err := t.RequestRefund(); err != nil {
			return "", err
		}
	case domain.DisputeStateRefundRequested:
		// last rung reached
	default:
		return "", domain.ErrDisputeStateRewind
	}

	log.WithFields(log.Fields{
		"trade": t.ID, "disputeState": t.DisputeState.String(),
		"resolver": resolver,
	}).Info("dispute escalation")
	return resolver, nil
}

// RevertForPaymentResend applies the one sanctioned monotonicity exception:
// during a reopened mediation the trade goes back to the deposit-confirmed
// step so the buyer can resend the payment-started message. The transition
// is logged explicitly.
func RevertForPaymentResend(t *domain.Trade) error {
	prev := t.State
	if _, err := t.RevertForPaymentResend(); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"trade": t.ID, "from": prev.String(), "to": t.State.String(),
	}).Warn("resend correction applied, state moved backward")
	return nil
}
