package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

type tradeRepositoryImpl struct {
	trades map[string]*domain.Trade
	locker *sync.Mutex
}

// NewTradeRepositoryImpl returns a new inmemory TradeRepository
// implementation. Records are stored as deep copies so the repository keeps
// snapshot semantics like the persistent store.
func NewTradeRepositoryImpl() domain.TradeRepository {
	return &tradeRepositoryImpl{
		trades: map[string]*domain.Trade{},
		locker: &sync.Mutex{},
	}
}

func (r *tradeRepositoryImpl) AddTrade(_ context.Context, trade *domain.Trade) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	if _, ok := r.trades[trade.ID]; ok {
		return fmt.Errorf("trade with id %s already exists", trade.ID)
	}
	copied, err := copyTrade(trade)
	if err != nil {
		return err
	}
	r.trades[trade.ID] = copied
	return nil
}

func (r *tradeRepositoryImpl) GetTrade(_ context.Context, tradeID string) (*domain.Trade, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	trade, ok := r.trades[tradeID]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	return copyTrade(trade)
}

func (r *tradeRepositoryImpl) GetAllTrades(_ context.Context) ([]*domain.Trade, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	trades := make([]*domain.Trade, 0, len(r.trades))
	for _, t := range r.trades {
		copied, err := copyTrade(t)
		if err != nil {
			return nil, err
		}
		trades = append(trades, copied)
	}
	return trades, nil
}

func (r *tradeRepositoryImpl) UpdateTrade(
	ctx context.Context,
	tradeID string,
	updateFn func(t *domain.Trade) (*domain.Trade, error),
) error {
	currentTrade, err := r.GetTrade(ctx, tradeID)
	if err != nil {
		return err
	}

	updatedTrade, err := updateFn(currentTrade)
	if err != nil {
		return err
	}

	r.locker.Lock()
	defer r.locker.Unlock()

	copied, err := copyTrade(updatedTrade)
	if err != nil {
		return err
	}
	r.trades[tradeID] = copied
	return nil
}

func (r *tradeRepositoryImpl) DeleteTrade(_ context.Context, tradeID string) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	if _, ok := r.trades[tradeID]; !ok {
		return domain.ErrTradeNotFound
	}
	delete(r.trades, tradeID)
	return nil
}

// copyTrade round-trips through the same codec the persistent store uses.
func copyTrade(t *domain.Trade) (*domain.Trade, error) {
	buf, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	var copied domain.Trade
	if err := json.Unmarshal(buf, &copied); err != nil {
		return nil, err
	}
	return &copied, nil
}
