package inmemory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
	"github.com/peerex-network/peerex-daemon/internal/infrastructure/storage/db/inmemory"
)

func newTestTrade(offerID string) *domain.Trade {
	offer := &domain.Offer{
		ID:               offerID,
		Direction:        domain.OfferDirectionSell,
		BaseAsset:        "BTC",
		CounterAsset:     "USD",
		Amount:           decimal.NewFromInt(100000),
		Price:            decimal.RequireFromString("42000.5"),
		MakerNodeAddress: "maker.onion:9999",
		ResolverAddresses: []domain.NodeAddress{
			"resolver-1.onion:8000",
			"resolver-2.onion:8000",
		},
	}
	return domain.NewTrade(offer, domain.RoleBuyer, domain.InitiatorTaker)
}

func TestTradeRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := inmemory.NewTradeRepositoryImpl()
	trade := newTestTrade("offer-1")

	_, err := repo.GetTrade(ctx, trade.ID)
	require.ErrorIs(t, err, domain.ErrTradeNotFound)

	require.NoError(t, repo.AddTrade(ctx, trade))
	require.Error(t, repo.AddTrade(ctx, trade))

	found, err := repo.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	require.Equal(t, trade.ID, found.ID)
	require.Equal(t, domain.StatePreparation, found.State)
	require.NotNil(t, found.Offer)
	require.Equal(t, "offer-1", found.Offer.ID)

	all, err := repo.GetAllTrades(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, repo.DeleteTrade(ctx, trade.ID))
	require.ErrorIs(t, repo.DeleteTrade(ctx, trade.ID), domain.ErrTradeNotFound)
}

func TestTradeRepositorySnapshotSemantics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := inmemory.NewTradeRepositoryImpl()
	trade := newTestTrade("offer-1")
	require.NoError(t, repo.AddTrade(ctx, trade))

	// mutating the caller's copy after Add must not leak into the store
	_, err := trade.AdvanceState(domain.StateTakerPublishedTakerFeeTx)
	require.NoError(t, err)

	found, err := repo.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatePreparation, found.State)

	// and mutating a fetched copy must not either
	_, err = found.AdvanceState(domain.StateTakerPublishedTakerFeeTx)
	require.NoError(t, err)

	again, err := repo.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatePreparation, again.State)
}

func TestUpdateTradePersistsClosureResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := inmemory.NewTradeRepositoryImpl()
	trade := newTestTrade("offer-1")
	require.NoError(t, repo.AddTrade(ctx, trade))

	err := repo.UpdateTrade(ctx, trade.ID, func(t *domain.Trade) (*domain.Trade, error) {
		if _, err := t.AdvanceState(domain.StateTakerPublishedTakerFeeTx); err != nil {
			return nil, err
		}
		return t, nil
	})
	require.NoError(t, err)

	found, err := repo.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateTakerPublishedTakerFeeTx, found.State)

	err = repo.UpdateTrade(ctx, trade.ID, func(t *domain.Trade) (*domain.Trade, error) {
		return nil, domain.ErrTradeStateRewind
	})
	require.ErrorIs(t, err, domain.ErrTradeStateRewind)
}

func TestArchiveRepositoriesTolerateReplays(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := inmemory.NewDbManager()
	trade := newTestTrade("offer-1")

	failed := &domain.FailedTrade{Trade: trade, Reason: "step timed out"}
	require.NoError(t, db.FailedTradeRepository().AddFailedTrade(ctx, failed))
	require.NoError(t, db.FailedTradeRepository().AddFailedTrade(ctx, failed))

	archived, err := db.FailedTradeRepository().GetAllFailedTrades(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	require.Equal(t, "step timed out", archived[0].Reason)

	closed := &domain.ClosedTrade{Trade: trade}
	require.NoError(t, db.ClosedTradeRepository().AddClosedTrade(ctx, closed))
	require.NoError(t, db.ClosedTradeRepository().AddClosedTrade(ctx, closed))

	allClosed, err := db.ClosedTradeRepository().GetAllClosedTrades(ctx)
	require.NoError(t, err)
	require.Len(t, allClosed, 1)
}
