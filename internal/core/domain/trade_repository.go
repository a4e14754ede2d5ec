package domain

import "context"

// TradeRepository is the abstraction for any kind of database intended to
// persist open trades.
type TradeRepository interface {
	// AddTrade inserts a new trade. Trade ids are globally unique: adding a
	// trade with an id already present must fail.
	AddTrade(ctx context.Context, trade *Trade) error
	// GetTrade returns the trade with the given id, or ErrTradeNotFound.
	GetTrade(ctx context.Context, tradeID string) (*Trade, error)
	// GetAllTrades returns all open trades.
	GetAllTrades(ctx context.Context) ([]*Trade, error)
	// UpdateTrade allows to commit multiple changes to the same trade in a
	// transactional way.
	UpdateTrade(
		ctx context.Context,
		tradeID string,
		updateFn func(t *Trade) (*Trade, error),
	) error
	// DeleteTrade removes the trade from the open set. Used both when a
	// trade is discarded during preparation and when it is archived.
	DeleteTrade(ctx context.Context, tradeID string) error
}

// FailedTrade is an archived trade that could not complete cooperatively
// after funds were committed, kept for audit and manual recovery.
type FailedTrade struct {
	Trade      *Trade
	Reason     string
	ArchivedAt int64
}

// FailedTradeRepository persists the failed-trades archive. Entries are
// append-only: a fund-moving fact is never deleted.
type FailedTradeRepository interface {
	AddFailedTrade(ctx context.Context, failed *FailedTrade) error
	GetFailedTrade(ctx context.Context, tradeID string) (*FailedTrade, error)
	GetAllFailedTrades(ctx context.Context) ([]*FailedTrade, error)
}

// ClosedTrade is a trade that reached payout completion and left the open
// set.
type ClosedTrade struct {
	Trade    *Trade
	ClosedAt int64
}

// ClosedTradeRepository persists the archive of successfully completed
// trades.
type ClosedTradeRepository interface {
	AddClosedTrade(ctx context.Context, closed *ClosedTrade) error
	GetClosedTrade(ctx context.Context, tradeID string) (*ClosedTrade, error)
	GetAllClosedTrades(ctx context.Context) ([]*ClosedTrade, error)
}
