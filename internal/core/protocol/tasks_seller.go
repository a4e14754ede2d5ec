package protocol

import (
	"context"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

// taskProcessPaymentStartedMessage stores the buyer's payout signature for
// the later payout finalization.
var taskProcessPaymentStartedMessage = Task{
	Name: "ProcessPaymentStartedMessage",
	Run: func(c *TaskContext) {
		msg, ok := c.Model.TradeMessage.(*domain.PaymentStartedMessage)
		if !ok {
			c.Fail("unexpected message payload")
			return
		}
		if len(msg.PayoutTxSignature) == 0 {
			c.Fail("buyer payout signature missing")
			return
		}
		c.Model.TradingPeer().PayoutTxSignature = msg.PayoutTxSignature

		if _, err := c.Trade.AdvanceState(
			domain.StateSellerReceivedPaymentStartedMessage,
		); err != nil {
			c.Fail(err.Error())
			return
		}
		c.Complete()
	},
}

// taskApplyPaymentReceipt records the seller's UI confirmation that the
// counter-asset payment arrived.
var taskApplyPaymentReceipt = Task{
	Name: "ApplyPaymentReceipt",
	Run: func(c *TaskContext) {
		if c.Trade.State >= domain.StateSellerConfirmedPaymentReceipt {
			// recovery re-runs the pipeline from the top; the confirmation
			// is already on record
			c.Complete()
			return
		}
		if _, err := c.Trade.AdvanceState(
			domain.StateSellerConfirmedPaymentReceipt,
		); err != nil {
			c.Fail(err.Error())
			return
		}
		c.Complete()
	},
}

// taskSignAndFinalizePayoutTx combines the buyer's payout signature with the
// seller's key into the broadcastable payout transaction. Skipped when the
// payout tx is already recorded: it is never re-signed.
var taskSignAndFinalizePayoutTx = Task{
	Name: "SignAndFinalizePayoutTx",
	Run: func(c *TaskContext) {
		if c.Trade.PayoutTxID != "" {
			c.Complete()
			return
		}
		trade := c.Trade
		wallet := c.Services.Wallet
		peerSig := c.Model.TradingPeer().PayoutTxSignature
		hash := contractHash(trade.ContractAsJSON)
		var rawTx []byte
		var txID string
		c.Async(func() error {
			tx, id, err := wallet.FinalizePayoutTx(
				context.Background(), trade.ID, trade.DepositTxID, peerSig, hash,
			)
			rawTx, txID = tx, id
			return err
		}, func() error {
			_, err := trade.SetPayoutTx(rawTx, txID)
			return err
		})
	},
}

// taskPublishPayoutTx broadcasts the payout transaction.
var taskPublishPayoutTx = Task{
	Name: "PublishPayoutTx",
	Run: func(c *TaskContext) {
		if c.Trade.State >= domain.StateSellerPublishedPayoutTx {
			c.Complete()
			return
		}
		trade := c.Trade
		wallet := c.Services.Wallet
		c.Async(func() error {
			_, err := wallet.BroadcastTx(context.Background(), trade.PayoutTx)
			return err
		}, func() error {
			_, err := trade.AdvanceState(domain.StateSellerPublishedPayoutTx)
			return err
		})
	},
}

// taskSendPayoutTxPublishedMessage notifies the buyer, mailbox fallback
// included.
var taskSendPayoutTxPublishedMessage = Task{
	Name: "SendPayoutTxPublishedMessage",
	Run: func(c *TaskContext) {
		msg := &domain.PayoutTxPublishedMessage{
			MessageMeta: domain.NewMessageMeta(c.Trade.ID, c.Services.MyPubKey()),
			PayoutTx:    c.Trade.PayoutTx,
			PayoutTxID:  c.Trade.PayoutTxID,
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
			_, err := trade.AdvanceState(domain.StateSellerSentPayoutTxPublishedMessage)
			return err
		})
	},
}
