package inmemory

import (
	"context"
	"sync"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

type failedTradeRepositoryImpl struct {
	failed map[string]*domain.FailedTrade
	locker *sync.Mutex
}

// NewFailedTradeRepositoryImpl returns a new inmemory FailedTradeRepository
// implementation.
func NewFailedTradeRepositoryImpl() domain.FailedTradeRepository {
	return &failedTradeRepositoryImpl{
		failed: map[string]*domain.FailedTrade{},
		locker: &sync.Mutex{},
	}
}

func (r *failedTradeRepositoryImpl) AddFailedTrade(
	_ context.Context, failed *domain.FailedTrade,
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	if _, ok := r.failed[failed.Trade.ID]; ok {
		return nil
	}
	r.failed[failed.Trade.ID] = failed
	return nil
}

func (r *failedTradeRepositoryImpl) GetFailedTrade(
	_ context.Context, tradeID string,
) (*domain.FailedTrade, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	failed, ok := r.failed[tradeID]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	return failed, nil
}

func (r *failedTradeRepositoryImpl) GetAllFailedTrades(
	_ context.Context,
) ([]*domain.FailedTrade, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	list := make([]*domain.FailedTrade, 0, len(r.failed))
	for _, f := range r.failed {
		list = append(list, f)
	}
	return list, nil
}

type closedTradeRepositoryImpl struct {
	closed map[string]*domain.ClosedTrade
	locker *sync.Mutex
}

// NewClosedTradeRepositoryImpl returns a new inmemory ClosedTradeRepository
// implementation.
func NewClosedTradeRepositoryImpl() domain.ClosedTradeRepository {
	return &closedTradeRepositoryImpl{
		closed: map[string]*domain.ClosedTrade{},
		locker: &sync.Mutex{},
	}
}

func (r *closedTradeRepositoryImpl) AddClosedTrade(
	_ context.Context, closed *domain.ClosedTrade,
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	if _, ok := r.closed[closed.Trade.ID]; ok {
		return nil
	}
	r.closed[closed.Trade.ID] = closed
	return nil
}

func (r *closedTradeRepositoryImpl) GetClosedTrade(
	_ context.Context, tradeID string,
) (*domain.ClosedTrade, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	closed, ok := r.closed[tradeID]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	return closed, nil
}

func (r *closedTradeRepositoryImpl) GetAllClosedTrades(
	_ context.Context,
) ([]*domain.ClosedTrade, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	list := make([]*domain.ClosedTrade, 0, len(r.closed))
	for _, c := range r.closed {
		list = append(list, c)
	}
	return list, nil
}
