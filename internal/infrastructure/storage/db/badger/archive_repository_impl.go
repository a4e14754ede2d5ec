package dbbadger

import (
	"context"
	"fmt"

	"github.com/timshannon/badgerhold/v4"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

type failedTradeRepositoryImpl struct {
	db *DbManager
}

// NewFailedTradeRepositoryImpl returns the badger-backed failed-trades
// archive.
func NewFailedTradeRepositoryImpl(db *DbManager) domain.FailedTradeRepository {
	return failedTradeRepositoryImpl{db: db}
}

func (r failedTradeRepositoryImpl) AddFailedTrade(
	ctx context.Context, failed *domain.FailedTrade,
) error {
	if err := r.db.ArchiveStore.Insert(failed.Trade.ID, failed); err != nil {
		// crash between archival and open-set removal replays the archival
		if err == badgerhold.ErrKeyExists {
			return nil
		}
		return err
	}
	return nil
}

func (r failedTradeRepositoryImpl) GetFailedTrade(
	ctx context.Context, tradeID string,
) (*domain.FailedTrade, error) {
	var failed domain.FailedTrade
	if err := r.db.ArchiveStore.Get(tradeID, &failed); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrTradeNotFound
		}
		return nil, err
	}
	return &failed, nil
}

func (r failedTradeRepositoryImpl) GetAllFailedTrades(
	ctx context.Context,
) ([]*domain.FailedTrade, error) {
	var failed []domain.FailedTrade
	if err := r.db.ArchiveStore.Find(&failed, nil); err != nil {
		return nil, err
	}
	list := make([]*domain.FailedTrade, 0, len(failed))
	for i := range failed {
		list = append(list, &failed[i])
	}
	return list, nil
}

type closedTradeRepositoryImpl struct {
	db *DbManager
}

// NewClosedTradeRepositoryImpl returns the badger-backed completed-trades
// archive.
func NewClosedTradeRepositoryImpl(db *DbManager) domain.ClosedTradeRepository {
	return closedTradeRepositoryImpl{db: db}
}

func (r closedTradeRepositoryImpl) AddClosedTrade(
	ctx context.Context, closed *domain.ClosedTrade,
) error {
	if closed.Trade == nil {
		return fmt.Errorf("closed trade without trade record")
	}
	if err := r.db.ArchiveStore.Insert(closed.Trade.ID, closed); err != nil {
		if err == badgerhold.ErrKeyExists {
			return nil
		}
		return err
	}
	return nil
}

func (r closedTradeRepositoryImpl) GetClosedTrade(
	ctx context.Context, tradeID string,
) (*domain.ClosedTrade, error) {
	var closed domain.ClosedTrade
	if err := r.db.ArchiveStore.Get(tradeID, &closed); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrTradeNotFound
		}
		return nil, err
	}
	return &closed, nil
}

func (r closedTradeRepositoryImpl) GetAllClosedTrades(
	ctx context.Context,
) ([]*domain.ClosedTrade, error) {
	var closed []domain.ClosedTrade
	if err := r.db.ArchiveStore.Find(&closed, nil); err != nil {
		return nil, err
	}
	list := make([]*domain.ClosedTrade, 0, len(closed))
	for i := range closed {
		list = append(list, &closed[i])
	}
	return list, nil
}
