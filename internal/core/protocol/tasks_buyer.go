package protocol

import (
	"context"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

// taskApplyPaymentInitiated records the buyer's UI confirmation that the
// counter-asset payment was started.
var taskApplyPaymentInitiated = Task{
	Name: "ApplyPaymentInitiated",
	Run: func(c *TaskContext) {
		if c.Trade.DisputeState != domain.DisputeStateNone &&
			c.Trade.State == domain.StateDepositConfirmedOnChain {
			// reached via the resend correction, state is already right
			c.Complete()
			return
		}
		if _, err := c.Trade.AdvanceState(
			domain.StateBuyerConfirmedPaymentInitiated,
		); err != nil {
			c.Fail(err.Error())
			return
		}
		c.Complete()
	},
}

// taskCreatePayoutTxSignature signs the payout transaction spending the
// deposit. An existing signature is reused: once produced for a published
// deposit it is never re-created.
var taskCreatePayoutTxSignature = Task{
	Name: "CreatePayoutTxSignature",
	Run: func(c *TaskContext) {
		if len(c.Model.PayoutTxSignature) > 0 {
			c.Complete()
			return
		}
		trade := c.Trade
		model := c.Model
		wallet := c.Services.Wallet
		hash := contractHash(trade.ContractAsJSON)
		var sig []byte
		c.Async(func() error {
			s, err := wallet.SignPayoutTx(
				context.Background(), trade.ID, trade.DepositTxID, hash,
			)
			sig = s
			return err
		}, func() error {
			model.PayoutTxSignature = sig
			return nil
		})
	},
}

// taskSendPaymentStartedMessage sends the payment-started notice with the
// buyer's payout signature, mailbox fallback included since the seller may
// be offline for a long time.
var taskSendPaymentStartedMessage = Task{
	Name: "SendPaymentStartedMessage",
	Run: func(c *TaskContext) {
		msg := &domain.PaymentStartedMessage{
			MessageMeta:       domain.NewMessageMeta(c.Trade.ID, c.Services.MyPubKey()),
			PayoutTxSignature: c.Model.PayoutTxSignature,
		}
		sig, err := domain.SignMessage(msg, c.Services.SigningKey)
		if err != nil {
			c.Fail(err.Error())
			return
		}
		msg.Signature = sig

		trade := c.Trade
		messenger := c.Services.Messenger
		to, peerPubKey := trade.PeerNodeAddress, c.Model.TradingPeer().PubKey
		c.Async(func() error {
			return messenger.SendMailbox(context.Background(), to, peerPubKey, msg)
		}, func() error {
			_, err := trade.AdvanceState(domain.StateBuyerSentPaymentStartedMessage)
			return err
		})
	},
}

// taskProcessPayoutTxPublishedMessage records the payout transaction the
// seller broadcast.
var taskProcessPayoutTxPublishedMessage = Task{
	Name: "ProcessPayoutTxPublishedMessage",
	Run: func(c *TaskContext) {
		msg, ok := c.Model.TradeMessage.(*domain.PayoutTxPublishedMessage)
		if !ok {
			c.Fail("unexpected message payload")
			return
		}
		if len(msg.PayoutTx) == 0 || msg.PayoutTxID == "" {
			c.Fail("payout tx missing")
			return
		}
		if _, err := c.Trade.SetPayoutTx(msg.PayoutTx, msg.PayoutTxID); err != nil {
			c.Fail(err.Error())
			return
		}
		if _, err := c.Trade.AdvanceState(
			domain.StateBuyerReceivedPayoutTxPublishedMessage,
		); err != nil {
			c.Fail(err.Error())
			return
		}
		c.Complete()
	},
}
