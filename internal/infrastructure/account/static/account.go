package static

import (
	"encoding/json"
	"fmt"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
	"github.com/peerex-network/peerex-daemon/internal/core/ports"
)

// AccountService serves the local account metadata from values fixed at
// startup. Ban checks always pass: deployments with a ban list plug in their
// own implementation of the port.
type AccountService struct {
	accountID string
	payloads  map[string]json.RawMessage
	resolvers []domain.NodeAddress
}

// NewAccountService returns a static account service for the given local
// account. The payload is stored for the local account id only.
func NewAccountService(
	accountID string, payload json.RawMessage, resolvers []domain.NodeAddress,
) *AccountService {
	return &AccountService{
		accountID: accountID,
		payloads:  map[string]json.RawMessage{accountID: payload},
		resolvers: resolvers,
	}
}

var _ ports.AccountService = (*AccountService)(nil)

func (s *AccountService) AccountID() string { return s.accountID }

func (s *AccountService) PaymentAccountPayload(accountID string) (json.RawMessage, error) {
	payload, ok := s.payloads[accountID]
	if !ok {
		return nil, fmt.Errorf("no payment account payload for account %s", accountID)
	}
	return payload, nil
}

func (s *AccountService) IsBanned(accountID string) bool { return false }

func (s *AccountService) AcceptedResolvers() []domain.NodeAddress {
	return s.resolvers
}
