package protocol

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
	"github.com/peerex-network/peerex-daemon/internal/core/ports"
	"github.com/peerex-network/peerex-daemon/internal/infrastructure/storage/db/inmemory"
	"github.com/peerex-network/peerex-daemon/pkg/circuitbreaker"
)

///////////////////////////////////////////////////////////////////////////
// fakes
///////////////////////////////////////////////////////////////////////////

type fakeWallet struct {
	mu         sync.Mutex
	broadcasts []string

	released chan string
	watches  chan string
	// confirmOnWatch fires the confirmation callback as soon as a watch is
	// armed
	confirmOnWatch bool
	// feeTxDelay stalls CreateAndPublishFeeTx, simulating a slow backend
	feeTxDelay time.Duration

	signPayoutCalls  int32
	signDepositCalls int32
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		released: make(chan string, 4),
		watches:  make(chan string, 4),
	}
}

func (w *fakeWallet) CreateAndPublishFeeTx(
	_ context.Context, tradeID string, _ uint64,
) (string, error) {
	if w.feeTxDelay > 0 {
		time.Sleep(w.feeTxDelay)
	}
	return "fee-tx-1", nil
}

func (w *fakeWallet) ReserveFundsForTrade(_ context.Context, _ string, _ uint64) error {
	return nil
}

func (w *fakeWallet) ReleaseReservedFunds(_ context.Context, tradeID string) error {
	w.released <- tradeID
	return nil
}

func (w *fakeWallet) CreateDepositTxInputs(
	_ context.Context, tradeID string, fundsNeeded uint64,
) (*ports.DepositTxInputs, error) {
	return &ports.DepositTxInputs{
		Inputs:         []domain.RawInput{{TxID: "in-" + tradeID, Index: 0, Value: fundsNeeded + 100}},
		ChangeValue:    100,
		ChangeAddress:  "change-" + tradeID,
		MultiSigPubKey: []byte("msig-" + tradeID),
	}, nil
}

func (w *fakeWallet) CreateAndSignDepositTx(
	_ context.Context, _ string, _, _ *ports.DepositTxInputs,
) ([]byte, string, error) {
	atomic.AddInt32(&w.signDepositCalls, 1)
	return []byte("raw-deposit"), "deposit-tx-1", nil
}

func (w *fakeWallet) SignPayoutTx(
	_ context.Context, _, _ string, _ []byte,
) ([]byte, error) {
	atomic.AddInt32(&w.signPayoutCalls, 1)
	return []byte("payout-sig"), nil
}

func (w *fakeWallet) FinalizePayoutTx(
	_ context.Context, _, _ string, _, _ []byte,
) ([]byte, string, error) {
	return []byte("raw-payout"), "payout-tx-1", nil
}

func (w *fakeWallet) BroadcastTx(_ context.Context, rawTx []byte) (string, error) {
	w.mu.Lock()
	w.broadcasts = append(w.broadcasts, string(rawTx))
	w.mu.Unlock()
	return "txid", nil
}

func (w *fakeWallet) GetTxConfirmations(_ context.Context, _ string) (uint32, error) {
	return 1, nil
}

func (w *fakeWallet) WatchTxConfirmations(
	_ context.Context, txID string, _ uint32, onConfirmed func(string),
) error {
	w.watches <- txID
	if w.confirmOnWatch {
		onConfirmed(txID)
	}
	return nil
}

func (w *fakeWallet) broadcastCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.broadcasts)
}

type fakeMessenger struct {
	sent        chan domain.TradeMessage
	mailboxSent chan domain.TradeMessage
	removed     chan string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		sent:        make(chan domain.TradeMessage, 8),
		mailboxSent: make(chan domain.TradeMessage, 8),
		removed:     make(chan string, 4),
	}
}

func (m *fakeMessenger) Send(
	_ context.Context, _ domain.NodeAddress, _ []byte, msg domain.TradeMessage,
) error {
	m.sent <- msg
	return nil
}

func (m *fakeMessenger) SendMailbox(
	_ context.Context, _ domain.NodeAddress, _ []byte, msg domain.TradeMessage,
) error {
	m.mailboxSent <- msg
	return nil
}

func (m *fakeMessenger) AddListener(_ string, _ ports.MessageListener) {}

func (m *fakeMessenger) RemoveListener(tradeID string) {
	m.removed <- tradeID
}

func (m *fakeMessenger) DeleteMailboxEntry(_, _ string) {}

type fakeAccount struct {
	id        string
	resolvers []domain.NodeAddress
}

func (a *fakeAccount) AccountID() string { return a.id }

func (a *fakeAccount) PaymentAccountPayload(accountID string) (json.RawMessage, error) {
	return json.RawMessage(`{"iban":"XX00"}`), nil
}

func (a *fakeAccount) IsBanned(string) bool { return false }

func (a *fakeAccount) AcceptedResolvers() []domain.NodeAddress { return a.resolvers }

type fakeCloser struct {
	removed   chan string
	failed    chan string
	completed chan string
}

func newFakeCloser() *fakeCloser {
	return &fakeCloser{
		removed:   make(chan string, 2),
		failed:    make(chan string, 2),
		completed: make(chan string, 2),
	}
}

func (c *fakeCloser) RemovePreparingTrade(tradeID string)  { c.removed <- tradeID }
func (c *fakeCloser) MoveToFailedTrades(tradeID, _ string) { c.failed <- tradeID }
func (c *fakeCloser) OnTradeCompleted(tradeID string)      { c.completed <- tradeID }

///////////////////////////////////////////////////////////////////////////
// fixture
///////////////////////////////////////////////////////////////////////////

type fixture struct {
	loop      *EventLoop
	offer     *domain.Offer
	trade     *domain.Trade
	wallet    *fakeWallet
	messenger *fakeMessenger
	closer    *fakeCloser
	repo      domain.TradeRepository
	services  *Services
	proto     *TradeProtocol
	peerKey   *btcec.PrivateKey
}

var testResolvers = []domain.NodeAddress{"resolver-1", "resolver-2"}

func newFixture(
	t *testing.T, role domain.Role, initiator domain.Initiator, opts Opts,
) *fixture {
	t.Helper()

	myKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	peerKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	offer := &domain.Offer{
		ID:                "offer-1",
		Direction:         domain.OfferDirectionSell,
		BaseAsset:         "BTC",
		CounterAsset:      "EUR",
		Amount:            decimal.NewFromInt(1),
		Price:             decimal.NewFromInt(50000),
		MakerNodeAddress:  "maker.onion:9999",
		MakerAccountID:    "maker-account",
		ResolverAddresses: testResolvers,
	}
	if initiator == domain.InitiatorTaker {
		// the taker learned the maker's pubkey from the offer
		offer.MakerPubKey = peerKey.PubKey().SerializeCompressed()
	}

	trade := domain.NewTrade(offer, role, initiator)
	if initiator == domain.InitiatorTaker {
		trade.SetPeerNodeAddress(offer.MakerNodeAddress)
		trade.ProcessModel().TradingPeer().PubKey = offer.MakerPubKey
	}

	wallet := newFakeWallet()
	messenger := newFakeMessenger()
	closer := newFakeCloser()
	repo := inmemory.NewTradeRepositoryImpl()

	services := &Services{
		Wallet:                wallet,
		Messenger:             messenger,
		Account:               &fakeAccount{id: "my-account", resolvers: testResolvers},
		Trades:                repo,
		SigningKey:            myKey,
		MyNodeAddress:         "me.onion:9999",
		Breaker:               circuitbreaker.NewCircuitBreaker(),
		TakerFeeAmount:        20000,
		RequiredConfirmations: 1,
	}

	loop := NewEventLoop()
	loop.Start()
	t.Cleanup(loop.Stop)

	if opts.StepTimeout == 0 {
		opts.StepTimeout = time.Hour
	}

	return &fixture{
		loop:      loop,
		offer:     offer,
		trade:     trade,
		wallet:    wallet,
		messenger: messenger,
		closer:    closer,
		repo:      repo,
		services:  services,
		proto:     New(trade, offer, services, closer, loop, opts),
		peerKey:   peerKey,
	}
}

func (f *fixture) persist(t *testing.T) {
	t.Helper()
	require.NoError(t, f.repo.AddTrade(context.Background(), f.trade))
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	f.loop.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event loop stalled")
	}
}

func (f *fixture) requirePersistedState(t *testing.T, expected domain.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		trade, err := f.repo.GetTrade(context.Background(), f.trade.ID)
		return err == nil && trade.State == expected
	}, 2*time.Second, 10*time.Millisecond)
}

func signedDepositInputsRequest(
	t *testing.T, tradeID string, key *btcec.PrivateKey,
) *domain.DepositInputsRequest {
	t.Helper()

	msg := &domain.DepositInputsRequest{
		MessageMeta:         domain.NewMessageMeta(tradeID, key.PubKey().SerializeCompressed()),
		TakerNodeAddress:    "taker.onion:9999",
		TakerAccountID:      "taker-account",
		TakerPaymentPayload: json.RawMessage(`{"iban":"YY11"}`),
		TakerMultiSigPubKey: []byte("taker-msig"),
		TakerRawInputs:      []domain.RawInput{{TxID: "taker-in", Index: 1, Value: 100_001_000}},
		TakerChangeValue:    1000,
		TakerChangeAddress:  "taker-change",
		TakerFeeTxID:        "fee-tx-1",
	}
	sig, err := domain.SignMessage(msg, key)
	require.NoError(t, err)
	msg.Signature = sig
	return msg
}

///////////////////////////////////////////////////////////////////////////
// tests
///////////////////////////////////////////////////////////////////////////

func TestDispatchRejectsTradeIDMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.RoleSeller, domain.InitiatorMaker, Opts{})
	f.persist(t)

	msg := signedDepositInputsRequest(t, "another-trade", f.peerKey)
	f.loop.Post(func() { f.proto.dispatch(msg, "taker.onion:9999", false) })
	f.flush(t)

	require.Equal(t, domain.StatePreparation, f.proto.Trade().State)
	require.Empty(t, f.messenger.sent)
}

func TestDispatchRejectsUnsignedMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.RoleSeller, domain.InitiatorMaker, Opts{})
	f.persist(t)

	msg := signedDepositInputsRequest(t, f.trade.ID, f.peerKey)
	msg.Signature = []byte("garbage")

	f.loop.Post(func() { f.proto.dispatch(msg, "taker.onion:9999", false) })
	f.flush(t)

	require.Equal(t, domain.StatePreparation, f.proto.Trade().State)
	require.Empty(t, f.messenger.sent)
}

func TestMakerHandlesDepositInputsRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.RoleSeller, domain.InitiatorMaker, Opts{})
	f.persist(t)

	msg := signedDepositInputsRequest(t, f.trade.ID, f.peerKey)
	f.loop.Post(func() { f.proto.dispatch(msg, "taker.onion:9999", false) })

	var response domain.TradeMessage
	select {
	case response = <-f.messenger.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("maker did not answer the taker request")
	}
	require.Equal(t, domain.MessageTypeDepositInputsResponse, response.Type())

	resp, ok := response.(*domain.DepositInputsResponse)
	require.True(t, ok)
	require.NotEmpty(t, resp.ContractAsJSON)
	require.NotEmpty(t, resp.ContractSignature)
	require.NoError(t, domain.VerifyContractSignature(
		resp.ContractAsJSON, resp.ContractSignature,
		f.services.MyPubKey(),
	))

	f.requirePersistedState(t, domain.StateMakerSentDepositInputsResponse)

	// the resolver is the same one the taker derives on its own
	expectedResolver, err := SelectResolver(f.offer.ID, testResolvers, testResolvers)
	require.NoError(t, err)
	require.Equal(t, expectedResolver, f.proto.Trade().ResolverAddress)

	// processing acknowledges the request
	select {
	case ack := <-f.messenger.mailboxSent:
		require.Equal(t, domain.MessageTypeAck, ack.Type())
	case <-time.After(2 * time.Second):
		t.Fatal("no ack sent")
	}
}

func TestMakerDropsDuplicateDepositInputsRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.RoleSeller, domain.InitiatorMaker, Opts{})
	f.persist(t)

	msg := signedDepositInputsRequest(t, f.trade.ID, f.peerKey)
	f.loop.Post(func() { f.proto.dispatch(msg, "taker.onion:9999", false) })

	select {
	case <-f.messenger.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("maker did not answer the taker request")
	}
	f.requirePersistedState(t, domain.StateMakerSentDepositInputsResponse)

	// a mailbox re-delivery of the same request is outside the allowed
	// phase now and must change nothing
	f.loop.Post(func() { f.proto.dispatch(msg, "taker.onion:9999", true) })
	f.flush(t)

	require.Equal(t, domain.StateMakerSentDepositInputsResponse, f.proto.Trade().State)
	require.Empty(t, f.messenger.sent)
}

func TestBuyerPaymentStartedDoubleClick(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.RoleBuyer, domain.InitiatorTaker, Opts{})
	f.trade.State = domain.StateDepositConfirmedOnChain
	f.trade.ContractAsJSON = []byte(`{"contract":true}`)
	f.trade.DepositTxID = "deposit-tx-1"
	f.persist(t)

	f.loop.Post(f.proto.OnPaymentStarted)
	f.loop.Post(f.proto.OnPaymentStarted)

	select {
	case msg := <-f.messenger.mailboxSent:
		require.Equal(t, domain.MessageTypePaymentStarted, msg.Type())
	case <-time.After(2 * time.Second):
		t.Fatal("payment started message not sent")
	}
	f.requirePersistedState(t, domain.StateBuyerSentPaymentStartedMessage)

	// the second click must not have produced a second message or a second
	// payout signature
	f.loop.Post(f.proto.OnPaymentStarted)
	f.flush(t)
	require.Empty(t, f.messenger.mailboxSent)
	require.Equal(t, int32(1), atomic.LoadInt32(&f.wallet.signPayoutCalls))
}

func TestStepTimeoutFaultsTheTrade(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.RoleBuyer, domain.InitiatorTaker, Opts{StepTimeout: 250 * time.Millisecond})
	f.persist(t)

	f.loop.Post(f.proto.OnTakeOffer)

	// the take-offer pipeline commits the fee and sends the opening request
	select {
	case msg := <-f.messenger.sent:
		require.Equal(t, domain.MessageTypeDepositInputsRequest, msg.Type())
	case <-time.After(2 * time.Second):
		t.Fatal("opening request not sent")
	}

	// no response arrives: the step timeout fires and the trade is archived
	// as failed since the fee tx cannot be taken back
	select {
	case tradeID := <-f.closer.failed:
		require.Equal(t, f.trade.ID, tradeID)
	case <-time.After(2 * time.Second):
		t.Fatal("trade not moved to failed trades")
	}
	select {
	case <-f.wallet.released:
	case <-time.After(2 * time.Second):
		t.Fatal("reserved funds not released")
	}
	select {
	case <-f.messenger.removed:
	case <-time.After(2 * time.Second):
		t.Fatal("listener not removed on teardown")
	}

	// a response arriving after the fault is rejected outright
	late := &domain.DepositInputsResponse{
		MessageMeta:         domain.NewMessageMeta(f.trade.ID, f.peerKey.PubKey().SerializeCompressed()),
		MakerMultiSigPubKey: []byte("maker-msig"),
		MakerRawInputs:      []domain.RawInput{{TxID: "maker-in", Index: 0, Value: 1}},
		ContractAsJSON:      []byte(`{}`),
		ContractSignature:   []byte("sig"),
	}
	sig, err := domain.SignMessage(late, f.peerKey)
	require.NoError(t, err)
	late.Signature = sig

	f.loop.Post(func() { f.proto.dispatch(late, "maker.onion:9999", false) })
	f.flush(t)

	trade, err := f.repo.GetTrade(context.Background(), f.trade.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateTakerSentDepositInputsRequest, trade.State)
	require.NotEmpty(t, trade.ErrorMessage)
	require.Equal(t, int32(0), atomic.LoadInt32(&f.wallet.signDepositCalls))
}

func TestRecoveryRebroadcastsPayoutWithoutResigning(t *testing.T) {
	t.Parallel()

	// the seller crashed after finalizing the payout but before the
	// published checkpoint was recorded: recovery must broadcast the
	// existing bytes, never sign anything again, and still notify the buyer
	f := newFixture(t, domain.RoleSeller, domain.InitiatorTaker, Opts{})
	f.trade.State = domain.StateSellerConfirmedPaymentReceipt
	f.trade.PayoutTx = []byte("raw-payout")
	f.trade.PayoutTxID = "payout-tx-1"
	f.persist(t)

	f.loop.Post(f.proto.Init)

	select {
	case msg := <-f.messenger.mailboxSent:
		require.Equal(t, domain.MessageTypePayoutTxPublished, msg.Type())
	case <-time.After(2 * time.Second):
		t.Fatal("payout published message not sent")
	}
	select {
	case tradeID := <-f.closer.completed:
		require.Equal(t, f.trade.ID, tradeID)
	case <-time.After(2 * time.Second):
		t.Fatal("recovered trade did not complete")
	}
	f.requirePersistedState(t, domain.StateWithdrawCompleted)

	require.Equal(t, 1, f.wallet.broadcastCount())
	require.Equal(t, int32(0), atomic.LoadInt32(&f.wallet.signPayoutCalls))
	require.Equal(t, int32(0), atomic.LoadInt32(&f.wallet.signDepositCalls))
}

func TestRecoveryResendsPayoutPublishedMessage(t *testing.T) {
	t.Parallel()

	// the seller crashed between broadcasting the payout and telling the
	// buyer about it: recovery re-runs only the missing send, the buyer must
	// not stay in the dark until a dispute
	f := newFixture(t, domain.RoleSeller, domain.InitiatorTaker, Opts{})
	f.trade.State = domain.StateSellerPublishedPayoutTx
	f.trade.PayoutTx = []byte("raw-payout")
	f.trade.PayoutTxID = "payout-tx-1"
	f.persist(t)

	f.loop.Post(f.proto.Init)

	select {
	case msg := <-f.messenger.mailboxSent:
		require.Equal(t, domain.MessageTypePayoutTxPublished, msg.Type())
		published, ok := msg.(*domain.PayoutTxPublishedMessage)
		require.True(t, ok)
		require.Equal(t, "payout-tx-1", published.PayoutTxID)
	case <-time.After(2 * time.Second):
		t.Fatal("payout published message not resent")
	}
	select {
	case tradeID := <-f.closer.completed:
		require.Equal(t, f.trade.ID, tradeID)
	case <-time.After(2 * time.Second):
		t.Fatal("recovered trade did not complete")
	}
	f.requirePersistedState(t, domain.StateWithdrawCompleted)

	// the published checkpoint exists, so nothing is broadcast or signed
	require.Equal(t, 0, f.wallet.broadcastCount())
	require.Equal(t, int32(0), atomic.LoadInt32(&f.wallet.signPayoutCalls))
	require.Equal(t, int32(0), atomic.LoadInt32(&f.wallet.signDepositCalls))
}

func TestStrayMessageKeepsStepTimeoutArmed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.RoleSeller, domain.InitiatorMaker, Opts{StepTimeout: 400 * time.Millisecond})
	f.persist(t)

	msg := signedDepositInputsRequest(t, f.trade.ID, f.peerKey)
	f.loop.Post(func() { f.proto.dispatch(msg, "taker.onion:9999", false) })

	select {
	case <-f.messenger.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("maker did not answer the taker request")
	}
	f.requirePersistedState(t, domain.StateMakerSentDepositInputsResponse)

	// a validly signed message the maker has no pipeline for must be dropped
	// without disarming the timer that guards the awaited deposit tx message
	stray := &domain.DepositInputsResponse{
		MessageMeta:         domain.NewMessageMeta(f.trade.ID, f.peerKey.PubKey().SerializeCompressed()),
		MakerMultiSigPubKey: []byte("maker-msig"),
		MakerRawInputs:      []domain.RawInput{{TxID: "maker-in", Index: 0, Value: 1}},
		ContractAsJSON:      []byte(`{}`),
		ContractSignature:   []byte("sig"),
	}
	sig, err := domain.SignMessage(stray, f.peerKey)
	require.NoError(t, err)
	stray.Signature = sig

	f.loop.Post(func() { f.proto.dispatch(stray, "taker.onion:9999", false) })
	f.flush(t)
	require.Equal(t, domain.StateMakerSentDepositInputsResponse, f.proto.Trade().State)

	// the taker never delivers the deposit tx: the step timeout still fires
	select {
	case <-f.wallet.released:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout did not fault the trade, reserved funds never released")
	}
	select {
	case <-f.messenger.removed:
	case <-time.After(2 * time.Second):
		t.Fatal("listener not removed on teardown")
	}

	trade, err := f.repo.GetTrade(context.Background(), f.trade.ID)
	require.NoError(t, err)
	require.NotEmpty(t, trade.ErrorMessage)
}

func TestStepTimeoutDuringSlowFeePublish(t *testing.T) {
	t.Parallel()

	// the wallet stalls while publishing the fee tx; the step timeout faults
	// the trade, and the pipeline's late outcome must neither touch the
	// persisted record nor resurrect the torn down instance
	f := newFixture(t, domain.RoleBuyer, domain.InitiatorTaker, Opts{StepTimeout: 100 * time.Millisecond})
	f.wallet.feeTxDelay = 400 * time.Millisecond
	f.persist(t)

	f.loop.Post(f.proto.OnTakeOffer)

	select {
	case tradeID := <-f.closer.removed:
		require.Equal(t, f.trade.ID, tradeID)
	case <-time.After(2 * time.Second):
		t.Fatal("preparing trade not removed on timeout")
	}
	select {
	case <-f.wallet.released:
	case <-time.After(2 * time.Second):
		t.Fatal("reserved funds not released")
	}
	select {
	case <-f.messenger.removed:
	case <-time.After(2 * time.Second):
		t.Fatal("listener not removed on teardown")
	}

	// the stalled pipeline eventually finishes its remaining steps
	select {
	case <-f.messenger.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("stalled pipeline never finished")
	}
	f.flush(t)

	// the late success was discarded: the persisted record still carries the
	// fault, not the fee-published state the stale pipeline produced
	trade, err := f.repo.GetTrade(context.Background(), f.trade.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatePreparation, trade.State)
	require.NotEmpty(t, trade.ErrorMessage)
	require.Empty(t, f.messenger.mailboxSent)
}

func TestRecoveryReArmsDepositConfirmationWatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.RoleSeller, domain.InitiatorMaker, Opts{})
	f.trade.State = domain.StateMakerReceivedDepositTxMessage
	f.trade.DepositTx = []byte("raw-deposit")
	f.trade.DepositTxID = "deposit-tx-1"
	f.wallet.confirmOnWatch = true
	f.persist(t)

	f.loop.Post(f.proto.Init)

	select {
	case txID := <-f.wallet.watches:
		require.Equal(t, "deposit-tx-1", txID)
	case <-time.After(2 * time.Second):
		t.Fatal("deposit watch not re-armed")
	}
	f.requirePersistedState(t, domain.StateDepositConfirmedOnChain)

	// recovery only watches, it never signs or broadcasts anything here
	require.Equal(t, 0, f.wallet.broadcastCount())
	require.Equal(t, int32(0), atomic.LoadInt32(&f.wallet.signDepositCalls))
}
