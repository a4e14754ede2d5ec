package protocol

import (
	"context"
	"encoding/json"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
	"github.com/peerex-network/peerex-daemon/internal/core/ports"
)

// taskCreateAndPublishTakerFeeTx publishes the taker fee transaction. Once
// the fee txid is recorded on the trade the task never creates a new one:
// the fund-moving fact is final.
var taskCreateAndPublishTakerFeeTx = Task{
	Name: "CreateAndPublishTakerFeeTx",
	Run: func(c *TaskContext) {
		if c.Trade.IsFeeCommitted() {
			c.Complete()
			return
		}
		trade := c.Trade
		wallet := c.Services.Wallet
		feeAmount := c.Services.TakerFeeAmount
		var txID string
		c.Async(func() error {
			id, err := wallet.CreateAndPublishFeeTx(
				context.Background(), trade.ID, feeAmount,
			)
			txID = id
			return err
		}, func() error {
			if _, err := trade.SetTakerFeeTx(txID); err != nil {
				return err
			}
			_, err := trade.AdvanceState(domain.StateTakerPublishedTakerFeeTx)
			return err
		})
	},
}

// taskSendDepositInputsRequest sends the taker's deposit contribution and
// account data to the maker.
var taskSendDepositInputsRequest = Task{
	Name: "SendDepositInputsRequest",
	Run: func(c *TaskContext) {
		payload, err := c.Services.Account.PaymentAccountPayload(
			c.Services.Account.AccountID())
		if err != nil {
			c.Fail(err.Error())
			return
		}

		msg := &domain.DepositInputsRequest{
			MessageMeta:         domain.NewMessageMeta(c.Trade.ID, c.Services.MyPubKey()),
			TakerNodeAddress:    c.Services.MyNodeAddress,
			TakerAccountID:      c.Services.Account.AccountID(),
			TakerPaymentPayload: payload,
			TakerMultiSigPubKey: c.Model.MyMultiSigPubKey,
			TakerRawInputs:      c.Model.RawInputs,
			TakerChangeValue:    c.Model.ChangeOutputValue,
			TakerChangeAddress:  c.Model.ChangeOutputAddress,
			TakerFeeTxID:        c.Trade.TakerFeeTxID,
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
			return messenger.Send(context.Background(), to, peerPubKey, msg)
		}, func() error {
			_, err := trade.AdvanceState(domain.StateTakerSentDepositInputsRequest)
			return err
		})
	},
}

// taskProcessDepositInputsResponse validates the maker's response and
// mirrors its fields into the trading peer.
var taskProcessDepositInputsResponse = Task{
	Name: "ProcessDepositInputsResponse",
	Run: func(c *TaskContext) {
		msg, ok := c.Model.TradeMessage.(*domain.DepositInputsResponse)
		if !ok {
			c.Fail("unexpected message payload")
			return
		}
		if len(msg.MakerMultiSigPubKey) == 0 || len(msg.MakerRawInputs) == 0 {
			c.Fail("maker deposit contribution incomplete")
			return
		}
		if len(msg.ContractAsJSON) == 0 || len(msg.ContractSignature) == 0 {
			c.Fail("maker contract missing")
			return
		}

		peer := c.Model.TradingPeer()
		peer.AccountID = msg.MakerAccountID
		peer.PaymentAccountPayload = msg.MakerPaymentPayload
		peer.MultiSigPubKey = msg.MakerMultiSigPubKey
		peer.RawInputs = msg.MakerRawInputs
		peer.ChangeOutputValue = msg.MakerChangeValue
		peer.ChangeOutputAddress = msg.MakerChangeAddress
		peer.ContractAsJSON = msg.ContractAsJSON
		peer.ContractSignature = msg.ContractSignature

		if _, err := c.Trade.AdvanceState(
			domain.StateTakerReceivedDepositInputsResponse,
		); err != nil {
			c.Fail(err.Error())
			return
		}
		c.Complete()
	},
}

// taskTakerVerifyAndSignContract checks the maker-built contract against the
// offer terms and this peer's own protocol data, verifies the maker's
// signature, and countersigns.
var taskTakerVerifyAndSignContract = Task{
	Name: "TakerVerifyAndSignContract",
	Run: func(c *TaskContext) {
		peer := c.Model.TradingPeer()

		var contract domain.Contract
		if err := json.Unmarshal(peer.ContractAsJSON, &contract); err != nil {
			c.Failf("parsing contract: %s", err)
			return
		}
		if contract.OfferID != c.Offer.ID || contract.TradeID != c.Trade.ID {
			c.Fail("contract identifies a different trade")
			return
		}
		if !contract.Amount.Equal(c.Offer.Amount) || !contract.Price.Equal(c.Offer.Price) {
			c.Fail("contract terms deviate from the offer")
			return
		}
		if contract.TakerFeeTxID != c.Trade.TakerFeeTxID {
			c.Fail("contract references a different taker fee tx")
			return
		}
		if contract.ResolverAddress != c.Trade.ResolverAddress {
			c.Fail("contract references a different dispute resolver")
			return
		}
		myMultiSig := contract.BuyerMultiSigPubKey
		if c.Trade.Role == domain.RoleSeller {
			myMultiSig = contract.SellerMultiSigPubKey
		}
		if string(myMultiSig) != string(c.Model.MyMultiSigPubKey) {
			c.Fail("contract carries a wrong multisig pubkey for this peer")
			return
		}

		if err := domain.VerifyContractSignature(
			peer.ContractAsJSON, peer.ContractSignature, peer.PubKey,
		); err != nil {
			c.Fail("maker contract signature invalid")
			return
		}

		c.Trade.ContractAsJSON = peer.ContractAsJSON
		c.Trade.PeerContractSignature = peer.ContractSignature
		c.Trade.MyContractSignature = domain.SignContractJSON(
			peer.ContractAsJSON, c.Services.SigningKey,
		)
		c.Complete()
	},
}

// taskTakerCreateAndSignDepositTx builds and signs the multisig deposit tx
// from both contributions. Skipped entirely when the deposit tx is already
// recorded: it must never be regenerated.
var taskTakerCreateAndSignDepositTx = Task{
	Name: "TakerCreateAndSignDepositTx",
	Run: func(c *TaskContext) {
		if c.Trade.DepositTxID != "" {
			c.Complete()
			return
		}

		peer := c.Model.TradingPeer()
		mine := &ports.DepositTxInputs{
			Inputs:         c.Model.RawInputs,
			ChangeValue:    c.Model.ChangeOutputValue,
			ChangeAddress:  c.Model.ChangeOutputAddress,
			MultiSigPubKey: c.Model.MyMultiSigPubKey,
		}
		peers := &ports.DepositTxInputs{
			Inputs:         peer.RawInputs,
			ChangeValue:    peer.ChangeOutputValue,
			ChangeAddress:  peer.ChangeOutputAddress,
			MultiSigPubKey: peer.MultiSigPubKey,
		}

		trade := c.Trade
		wallet := c.Services.Wallet
		var rawTx []byte
		var txID string
		c.Async(func() error {
			tx, id, err := wallet.CreateAndSignDepositTx(
				context.Background(), trade.ID, mine, peers,
			)
			rawTx, txID = tx, id
			return err
		}, func() error {
			_, err := trade.SetDepositTx(rawTx, txID)
			return err
		})
	},
}

// taskSendDepositTxMessage sends the signed deposit tx to the maker before
// broadcasting it, so the peer knows the tx even if this process dies right
// after the broadcast.
var taskSendDepositTxMessage = Task{
	Name: "SendDepositTxMessage",
	Run: func(c *TaskContext) {
		msg := &domain.DepositTxMessage{
			MessageMeta:       domain.NewMessageMeta(c.Trade.ID, c.Services.MyPubKey()),
			DepositTx:         c.Trade.DepositTx,
			DepositTxID:       c.Trade.DepositTxID,
			ContractSignature: c.Trade.MyContractSignature,
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
			return messenger.Send(context.Background(), to, peerPubKey, msg)
		}, func() error {
			_, err := trade.AdvanceState(domain.StateTakerSentDepositTxMessage)
			return err
		})
	},
}

// taskPublishDepositTx broadcasts the deposit transaction.
var taskPublishDepositTx = Task{
	Name: "PublishDepositTx",
	Run: func(c *TaskContext) {
		if c.Trade.State >= domain.StateTakerPublishedDepositTx {
			c.Complete()
			return
		}
		trade := c.Trade
		wallet := c.Services.Wallet
		c.Async(func() error {
			_, err := wallet.BroadcastTx(context.Background(), trade.DepositTx)
			return err
		}, func() error {
			_, err := trade.AdvanceState(domain.StateTakerPublishedDepositTx)
			return err
		})
	},
}
