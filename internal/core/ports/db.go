package ports

import "github.com/peerex-network/peerex-daemon/internal/core/domain"

// DbManager gives access to the repositories backed by one storage engine.
type DbManager interface {
	TradeRepository() domain.TradeRepository
	FailedTradeRepository() domain.FailedTradeRepository
	ClosedTradeRepository() domain.ClosedTradeRepository

	Close() error
}
