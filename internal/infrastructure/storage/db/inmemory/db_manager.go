package inmemory

import (
	"github.com/peerex-network/peerex-daemon/internal/core/domain"
	"github.com/peerex-network/peerex-daemon/internal/core/ports"
)

type DbManager struct {
	tradeRepository  domain.TradeRepository
	failedRepository domain.FailedTradeRepository
	closedRepository domain.ClosedTradeRepository
}

// NewDbManager returns a volatile db manager, used in tests and with the
// regtest profile.
func NewDbManager() ports.DbManager {
	return &DbManager{
		tradeRepository:  NewTradeRepositoryImpl(),
		failedRepository: NewFailedTradeRepositoryImpl(),
		closedRepository: NewClosedTradeRepositoryImpl(),
	}
}

func (d *DbManager) TradeRepository() domain.TradeRepository {
	return d.tradeRepository
}

func (d *DbManager) FailedTradeRepository() domain.FailedTradeRepository {
	return d.failedRepository
}

func (d *DbManager) ClosedTradeRepository() domain.ClosedTradeRepository {
	return d.closedRepository
}

func (d *DbManager) Close() error { return nil }
