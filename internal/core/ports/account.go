package ports

import (
	"encoding/json"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

// AccountService exposes the local account and payment-method metadata the
// protocol needs when building and validating contracts.
type AccountService interface {
	// AccountID returns the id of the local trading account.
	AccountID() string
	// PaymentAccountPayload returns the payment-method payload that goes
	// into the contract for the given account.
	PaymentAccountPayload(accountID string) (json.RawMessage, error)
	// IsBanned reports whether the given counterparty account is banned.
	IsBanned(accountID string) bool
	// AcceptedResolvers returns the dispute resolvers this node currently
	// accepts, used as one side of the deterministic resolver selection.
	AcceptedResolvers() []domain.NodeAddress
}
