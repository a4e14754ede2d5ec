package protocol

import (
	"context"
	"crypto/sha256"

	"github.com/shopspring/decimal"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
	"github.com/peerex-network/peerex-daemon/internal/core/ports"
)

var satsPerUnit = decimal.NewFromInt(100_000_000)

func amountToSats(d decimal.Decimal) uint64 {
	return uint64(d.Mul(satsPerUnit).IntPart())
}

func contractHash(contractJSON []byte) []byte {
	h := sha256.Sum256(contractJSON)
	return h[:]
}

// taskSelectDisputeResolver runs the deterministic resolver selection and
// records the result on the trade. Both peers run it independently; the
// selection rule guarantees they converge.
var taskSelectDisputeResolver = Task{
	Name: "SelectDisputeResolver",
	Run: func(c *TaskContext) {
		resolver, err := SelectResolver(
			c.Offer.ID, c.Offer.ResolverAddresses, c.AcceptedResolvers,
		)
		if err != nil {
			c.Fail(err.Error())
			return
		}
		if _, err := c.Trade.SelectResolver(resolver); err != nil {
			c.Fail(err.Error())
			return
		}
		c.Complete()
	},
}

// taskReserveTradeFunds locks the funds this peer must put into the deposit
// so a concurrent trade cannot double-spend them.
var taskReserveTradeFunds = Task{
	Name: "ReserveTradeFunds",
	Run: func(c *TaskContext) {
		if c.Model.FundsReserved {
			c.Complete()
			return
		}
		c.Model.FundsNeeded = amountToSats(c.Offer.Amount)
		tradeID, amount := c.Trade.ID, c.Model.FundsNeeded
		wallet, model := c.Services.Wallet, c.Model
		c.Async(func() error {
			return wallet.ReserveFundsForTrade(
				context.Background(), tradeID, amount,
			)
		}, func() error {
			model.FundsReserved = true
			return nil
		})
	},
}

// taskVerifyPeerAccount rejects trades with banned counterparty accounts.
// Must run before any local signature is created.
var taskVerifyPeerAccount = Task{
	Name: "VerifyPeerAccount",
	Run: func(c *TaskContext) {
		peer := c.Model.TradingPeer()
		if peer.AccountID == "" {
			c.Fail("peer account id missing")
			return
		}
		if c.Services.Account.IsBanned(peer.AccountID) {
			c.Failf("peer account %s is banned", peer.AccountID)
			return
		}
		c.Complete()
	},
}

// taskCreateDepositTxInputs asks the wallet for this peer's contribution to
// the multisig deposit transaction.
var taskCreateDepositTxInputs = Task{
	Name: "CreateDepositTxInputs",
	Run: func(c *TaskContext) {
		if len(c.Model.MyMultiSigPubKey) > 0 {
			// inputs already prepared by an interrupted earlier run
			c.Complete()
			return
		}
		wallet, model := c.Services.Wallet, c.Model
		tradeID, fundsNeeded := c.Trade.ID, c.Model.FundsNeeded
		var inputs *ports.DepositTxInputs
		c.Async(func() error {
			in, err := wallet.CreateDepositTxInputs(
				context.Background(), tradeID, fundsNeeded,
			)
			inputs = in
			return err
		}, func() error {
			model.RawInputs = inputs.Inputs
			model.ChangeOutputValue = inputs.ChangeValue
			model.ChangeOutputAddress = inputs.ChangeAddress
			model.MyMultiSigPubKey = inputs.MultiSigPubKey
			return nil
		})
	},
}

// taskApplyDepositConfirmed advances the trade once the deposit tx reached
// the required confirmation depth.
var taskApplyDepositConfirmed = Task{
	Name: "ApplyDepositConfirmed",
	Run: func(c *TaskContext) {
		if _, err := c.Trade.AdvanceState(domain.StateDepositConfirmedOnChain); err != nil {
			c.Fail(err.Error())
			return
		}
		c.Complete()
	},
}

// taskCompleteTrade moves the trade to its terminal state and drops the
// working-state blobs that are no longer needed.
var taskCompleteTrade = Task{
	Name: "CompleteTrade",
	Run: func(c *TaskContext) {
		if _, err := c.Trade.AdvanceState(domain.StateWithdrawCompleted); err != nil {
			c.Fail(err.Error())
			return
		}
		c.Model.ClearTransients()
		c.Complete()
	},
}
