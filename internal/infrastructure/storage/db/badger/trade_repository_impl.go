package dbbadger

import (
	"context"
	"fmt"

	"github.com/timshannon/badgerhold/v4"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

type tradeRepositoryImpl struct {
	db *DbManager
}

// NewTradeRepositoryImpl returns the badger-backed open-trades repository.
func NewTradeRepositoryImpl(db *DbManager) domain.TradeRepository {
	return tradeRepositoryImpl{db: db}
}

func (t tradeRepositoryImpl) AddTrade(
	ctx context.Context, trade *domain.Trade,
) error {
	if err := t.db.TradeStore.Insert(trade.ID, trade); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("trade with id %s already exists", trade.ID)
		}
		return err
	}
	return nil
}

func (t tradeRepositoryImpl) GetTrade(
	ctx context.Context, tradeID string,
) (*domain.Trade, error) {
	var trade domain.Trade
	if err := t.db.TradeStore.Get(tradeID, &trade); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrTradeNotFound
		}
		return nil, err
	}
	return &trade, nil
}

func (t tradeRepositoryImpl) GetAllTrades(
	ctx context.Context,
) ([]*domain.Trade, error) {
	var trades []domain.Trade
	if err := t.db.TradeStore.Find(&trades, nil); err != nil {
		return nil, err
	}
	list := make([]*domain.Trade, 0, len(trades))
	for i := range trades {
		list = append(list, &trades[i])
	}
	return list, nil
}

func (t tradeRepositoryImpl) UpdateTrade(
	ctx context.Context,
	tradeID string,
	updateFn func(t *domain.Trade) (*domain.Trade, error),
) error {
	currentTrade, err := t.GetTrade(ctx, tradeID)
	if err != nil {
		return err
	}

	updatedTrade, err := updateFn(currentTrade)
	if err != nil {
		return err
	}

	return t.db.TradeStore.Update(updatedTrade.ID, updatedTrade)
}

func (t tradeRepositoryImpl) DeleteTrade(
	ctx context.Context, tradeID string,
) error {
	if err := t.db.TradeStore.Delete(tradeID, &domain.Trade{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return domain.ErrTradeNotFound
		}
		return err
	}
	return nil
}
