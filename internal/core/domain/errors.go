package domain

import "errors"

var (
	// ErrTradeStateRewind is thrown when a transition would move the trade
	// state backward outside the explicit resend correction.
	ErrTradeStateRewind = errors.New("trade state cannot move backward")
	// ErrTradeInvalidStateTransition is thrown when the trade is not in the
	// state required by the requested transition.
	ErrTradeInvalidStateTransition = errors.New("invalid trade state transition")
	// ErrTradeTxAlreadyPublished is thrown when trying to set a fund-moving
	// transaction that was already recorded for the trade.
	ErrTradeTxAlreadyPublished = errors.New("transaction already published for this trade")
	// ErrTradeResolverAlreadySelected is thrown when trying to overwrite the
	// dispute resolver selected for the trade.
	ErrTradeResolverAlreadySelected = errors.New("dispute resolver already selected")
	// ErrTradeIDMismatch is thrown when a message carries a trade id other
	// than the one of the trade it was dispatched to.
	ErrTradeIDMismatch = errors.New("message trade id does not match")
	// ErrNoEligibleResolver is thrown when the offer's resolver list and the
	// locally accepted resolvers have an empty intersection.
	ErrNoEligibleResolver = errors.New("no eligible dispute resolver")
	// ErrMediationRequired is thrown when requesting arbitration before
	// mediation was attempted on a deployment with mediation enabled.
	ErrMediationRequired = errors.New("mediation must be attempted before arbitration")
	// ErrDisputeNotOpenable is thrown when opening a dispute before the
	// deposit is confirmed.
	ErrDisputeNotOpenable = errors.New("dispute cannot be opened before deposit confirmation")
	// ErrDisputeStateRewind is thrown when a dispute transition would move
	// the dispute state backward.
	ErrDisputeStateRewind = errors.New("dispute state cannot move backward")
	// ErrInvalidPubKey ...
	ErrInvalidPubKey = errors.New("invalid public key")
	// ErrInvalidSignature ...
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrTradeNotFound ...
	ErrTradeNotFound = errors.New("trade not found")
)
