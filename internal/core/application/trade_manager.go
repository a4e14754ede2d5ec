package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
	"github.com/peerex-network/peerex-daemon/internal/core/ports"
	"github.com/peerex-network/peerex-daemon/internal/core/protocol"
)

// TradeNotificationKind classifies lifecycle notifications emitted by the
// manager.
type TradeNotificationKind int

const (
	// TradeCompleted signals a trade that reached payout completion and was
	// archived to the closed set.
	TradeCompleted TradeNotificationKind = iota
	// TradeFailed signals a trade archived to the failed set after a fault
	// with committed funds.
	TradeFailed
	// TradeDiscarded signals a trade removed during preparation, before any
	// fund-moving transaction was published.
	TradeDiscarded
)

// TradeNotification is delivered on the manager's notification channel when
// a trade leaves the open set.
type TradeNotification struct {
	TradeID string
	Kind    TradeNotificationKind
	Reason  string
}

// TradeManager owns the lifecycle of all trades on this node: it creates the
// trade aggregate and its protocol instance when an offer is taken (taker
// side) or published (maker side), exposes the UI entry points, runs crash
// recovery on startup, and archives trades that reach a terminal outcome.
//
// There is exactly one protocol instance per open trade. The manager is the
// protocol's TradeCloser, so archival decisions stay in one place.
type TradeManager struct {
	services   *protocol.Services
	tradeRepo  domain.TradeRepository
	failedRepo domain.FailedTradeRepository
	closedRepo domain.ClosedTradeRepository
	loop       *protocol.EventLoop
	opts       protocol.Opts

	lock      sync.RWMutex
	protocols map[string]*protocol.TradeProtocol

	notifications chan TradeNotification
}

// NewTradeManager returns a manager wired to the given ports. The services'
// trade repository is taken from the db manager so the protocol and the
// manager always persist through the same store.
func NewTradeManager(
	services *protocol.Services,
	dbManager ports.DbManager,
	loop *protocol.EventLoop,
	opts protocol.Opts,
) *TradeManager {
	services.Trades = dbManager.TradeRepository()
	return &TradeManager{
		services:      services,
		tradeRepo:     dbManager.TradeRepository(),
		failedRepo:    dbManager.FailedTradeRepository(),
		closedRepo:    dbManager.ClosedTradeRepository(),
		loop:          loop,
		opts:          opts,
		protocols:     make(map[string]*protocol.TradeProtocol),
		notifications: make(chan TradeNotification, 32),
	}
}

// Notifications returns the channel on which trade lifecycle notifications
// are delivered. Slow consumers drop notifications rather than blocking the
// protocol.
func (m *TradeManager) Notifications() <-chan TradeNotification {
	return m.notifications
}

// Start runs the event loop and rebuilds a protocol instance for every open
// trade found in storage, re-arming watchers and re-broadcasting already
// signed transactions where needed. Completed trades found in the open set,
// left over from a crash between completion and archival, are archived now.
func (m *TradeManager) Start(ctx context.Context) error {
	m.loop.Start()

	trades, err := m.tradeRepo.GetAllTrades(ctx)
	if err != nil {
		return fmt.Errorf("load open trades: %w", err)
	}

	for _, t := range trades {
		if t.IsCompleted() {
			m.archiveClosed(t.ID)
			continue
		}
		if t.Offer == nil {
			log.WithField("trade", t.ID).Error("open trade without offer snapshot, skipping recovery")
			continue
		}
		p := protocol.New(t, t.Offer, m.services, m, m.loop, m.opts)
		m.lock.Lock()
		m.protocols[t.ID] = p
		m.lock.Unlock()
		p.Init()
		log.WithField("trade", t.ID).WithField("state", t.State).Info("trade recovered")
	}
	return nil
}

// Stop shuts down the event loop after draining already queued work.
func (m *TradeManager) Stop() {
	m.loop.Stop()
}

// TakeOffer creates the taker-side trade for the given offer and starts the
// initiate-trade pipeline. The trade id is derived from the offer id, so
// taking the same offer twice fails on insertion.
func (m *TradeManager) TakeOffer(ctx context.Context, offer *domain.Offer) (*domain.Trade, error) {
	role := takerRole(offer)
	trade := domain.NewTrade(offer, role, domain.InitiatorTaker)
	trade.SetPeerNodeAddress(offer.MakerNodeAddress)
	trade.ProcessModel().TradingPeer().PubKey = offer.MakerPubKey

	if err := m.tradeRepo.AddTrade(ctx, trade); err != nil {
		return nil, err
	}

	p := protocol.New(trade, offer, m.services, m, m.loop, m.opts)
	m.lock.Lock()
	m.protocols[trade.ID] = p
	m.lock.Unlock()

	p.Init()
	m.loop.Post(p.OnTakeOffer)
	return trade, nil
}

// WatchOffer creates the maker-side trade for an offer this node published
// and subscribes its protocol instance, so the taker's first message finds a
// registered handler. The trade stays in preparation until that message
// arrives; cancelling the offer discards it.
func (m *TradeManager) WatchOffer(ctx context.Context, offer *domain.Offer) (*domain.Trade, error) {
	role := makerRole(offer)
	trade := domain.NewTrade(offer, role, domain.InitiatorMaker)

	if err := m.tradeRepo.AddTrade(ctx, trade); err != nil {
		return nil, err
	}

	p := protocol.New(trade, offer, m.services, m, m.loop, m.opts)
	m.lock.Lock()
	m.protocols[trade.ID] = p
	m.lock.Unlock()

	p.Init()
	return trade, nil
}

// CancelOffer discards the maker-side trade of an offer that was withdrawn
// before any taker committed to it. Refused once the trade left preparation.
func (m *TradeManager) CancelOffer(ctx context.Context, offerID string) error {
	tradeID := domain.TradeIDFromOffer(offerID)
	trade, err := m.tradeRepo.GetTrade(ctx, tradeID)
	if err != nil {
		return err
	}
	if trade.Phase() != domain.PhasePreparation {
		return fmt.Errorf("offer %s already taken, trade in phase %s", offerID, trade.Phase())
	}
	m.RemovePreparingTrade(tradeID)
	return nil
}

// ConfirmPaymentStarted is the buyer's confirmation that the counter-asset
// payment was initiated.
func (m *TradeManager) ConfirmPaymentStarted(tradeID string) error {
	p, err := m.protocolFor(tradeID)
	if err != nil {
		return err
	}
	m.loop.Post(p.OnPaymentStarted)
	return nil
}

// ConfirmPaymentReceived is the seller's confirmation that the counter-asset
// payment arrived.
func (m *TradeManager) ConfirmPaymentReceived(tradeID string) error {
	p, err := m.protocolFor(tradeID)
	if err != nil {
		return err
	}
	m.loop.Post(p.OnPaymentReceived)
	return nil
}

// OpenDispute escalates the trade's dispute process by one step and returns
// the resolver to contact: mediation first when enabled, arbitration
// otherwise or after mediation closed without agreement. The escalation runs
// on the event loop against the protocol's live trade, never against a
// detached repository copy.
func (m *TradeManager) OpenDispute(ctx context.Context, tradeID string) (domain.NodeAddress, error) {
	p, err := m.protocolFor(tradeID)
	if err != nil {
		return "", err
	}

	type result struct {
		resolver domain.NodeAddress
		err      error
	}
	res := make(chan result, 1)
	m.loop.Post(func() {
		r, err := p.OnOpenDispute()
		res <- result{r, err}
	})
	select {
	case r := <-res:
		return r.resolver, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CloseDispute records the outcome of a dispute round. When the buyer must
// resend a correctable payment after mediation, pass resendPayment to rewind
// the trade to the deposit-confirmed checkpoint; the follow-up
// ConfirmPaymentStarted then re-runs the payment pipeline.
func (m *TradeManager) CloseDispute(ctx context.Context, tradeID string, resendPayment bool) error {
	p, err := m.protocolFor(tradeID)
	if err != nil {
		return err
	}

	res := make(chan error, 1)
	m.loop.Post(func() {
		res <- p.OnCloseDispute(resendPayment)
	})
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetTrade returns the open trade with the given id for observation.
func (m *TradeManager) GetTrade(ctx context.Context, tradeID string) (*domain.Trade, error) {
	return m.tradeRepo.GetTrade(ctx, tradeID)
}

// ListTrades returns all open trades.
func (m *TradeManager) ListTrades(ctx context.Context) ([]*domain.Trade, error) {
	return m.tradeRepo.GetAllTrades(ctx)
}

// ListFailedTrades returns the failed-trades archive.
func (m *TradeManager) ListFailedTrades(ctx context.Context) ([]*domain.FailedTrade, error) {
	return m.failedRepo.GetAllFailedTrades(ctx)
}

// ListClosedTrades returns the completed-trades archive.
func (m *TradeManager) ListClosedTrades(ctx context.Context) ([]*domain.ClosedTrade, error) {
	return m.closedRepo.GetAllClosedTrades(ctx)
}

///////////////////////////////////////////////////////////////////////////
// protocol.TradeCloser
///////////////////////////////////////////////////////////////////////////

// RemovePreparingTrade deletes a trade that never left preparation. Nothing
// fund-moving happened, so no archive entry is written.
func (m *TradeManager) RemovePreparingTrade(tradeID string) {
	m.dropProtocol(tradeID)
	if err := m.tradeRepo.DeleteTrade(context.Background(), tradeID); err != nil {
		log.WithError(err).WithField("trade", tradeID).Error("failed to remove preparing trade")
		return
	}
	m.notify(TradeNotification{TradeID: tradeID, Kind: TradeDiscarded})
	log.WithField("trade", tradeID).Info("preparing trade removed")
}

// MoveToFailedTrades archives a trade whose funds were committed but which
// cannot complete cooperatively. The archive entry is written before the
// trade leaves the open set so a crash in between can only duplicate, never
// lose, the record.
func (m *TradeManager) MoveToFailedTrades(tradeID, reason string) {
	m.dropProtocol(tradeID)
	ctx := context.Background()

	trade, err := m.tradeRepo.GetTrade(ctx, tradeID)
	if err != nil {
		log.WithError(err).WithField("trade", tradeID).Error("failed to load trade for archival")
		return
	}
	failed := &domain.FailedTrade{
		Trade:      trade,
		Reason:     reason,
		ArchivedAt: time.Now().Unix(),
	}
	if err := m.failedRepo.AddFailedTrade(ctx, failed); err != nil {
		log.WithError(err).WithField("trade", tradeID).Error("failed to archive trade")
		return
	}
	if err := m.tradeRepo.DeleteTrade(ctx, tradeID); err != nil {
		log.WithError(err).WithField("trade", tradeID).Error("failed to remove archived trade from open set")
	}
	m.notify(TradeNotification{TradeID: tradeID, Kind: TradeFailed, Reason: reason})
	log.WithField("trade", tradeID).WithField("reason", reason).Warn("trade moved to failed trades")
}

// OnTradeCompleted archives a trade that reached payout completion.
func (m *TradeManager) OnTradeCompleted(tradeID string) {
	m.dropProtocol(tradeID)
	m.archiveClosed(tradeID)
}

///////////////////////////////////////////////////////////////////////////
// internals
///////////////////////////////////////////////////////////////////////////

func (m *TradeManager) archiveClosed(tradeID string) {
	ctx := context.Background()

	trade, err := m.tradeRepo.GetTrade(ctx, tradeID)
	if err != nil {
		log.WithError(err).WithField("trade", tradeID).Error("failed to load trade for archival")
		return
	}
	closed := &domain.ClosedTrade{
		Trade:    trade,
		ClosedAt: time.Now().Unix(),
	}
	if err := m.closedRepo.AddClosedTrade(ctx, closed); err != nil {
		log.WithError(err).WithField("trade", tradeID).Error("failed to archive completed trade")
		return
	}
	if err := m.tradeRepo.DeleteTrade(ctx, tradeID); err != nil {
		log.WithError(err).WithField("trade", tradeID).Error("failed to remove archived trade from open set")
	}
	m.notify(TradeNotification{TradeID: tradeID, Kind: TradeCompleted})
	log.WithField("trade", tradeID).Info("trade completed")
}

func (m *TradeManager) protocolFor(tradeID string) (*protocol.TradeProtocol, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	p, ok := m.protocols[tradeID]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	return p, nil
}

func (m *TradeManager) dropProtocol(tradeID string) {
	m.lock.Lock()
	delete(m.protocols, tradeID)
	m.lock.Unlock()
}

func (m *TradeManager) notify(n TradeNotification) {
	select {
	case m.notifications <- n:
	default:
		log.WithField("trade", n.TradeID).Warn("notification dropped, channel full")
	}
}

// takerRole returns this node's payment role when taking the given offer:
// the taker takes the opposite side of the maker's direction.
func takerRole(offer *domain.Offer) domain.Role {
	if offer.Direction == domain.OfferDirectionBuy {
		return domain.RoleSeller
	}
	return domain.RoleBuyer
}

// makerRole returns this node's payment role when publishing the given
// offer.
func makerRole(offer *domain.Offer) domain.Role {
	if offer.Direction == domain.OfferDirectionBuy {
		return domain.RoleBuyer
	}
	return domain.RoleSeller
}
