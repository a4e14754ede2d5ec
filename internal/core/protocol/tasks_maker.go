package protocol

import (
	"context"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

// taskProcessDepositInputsRequest validates the taker's opening request and
// mirrors its fields into the trading peer. The sender signature was already
// verified during dispatch; this is where the sender address gets promoted
// to the trade's trusted peer address.
var taskProcessDepositInputsRequest = Task{
	Name: "ProcessDepositInputsRequest",
	Run: func(c *TaskContext) {
		msg, ok := c.Model.TradeMessage.(*domain.DepositInputsRequest)
		if !ok {
			c.Fail("unexpected message payload")
			return
		}
		if msg.TakerAccountID == "" || msg.TakerFeeTxID == "" {
			c.Fail("taker request incomplete")
			return
		}
		if len(msg.TakerMultiSigPubKey) == 0 || len(msg.TakerRawInputs) == 0 {
			c.Fail("taker deposit contribution incomplete")
			return
		}

		peer := c.Model.TradingPeer()
		peer.PubKey = msg.GetSenderPubKey()
		peer.NodeAddress = c.Model.TempPeerNodeAddress
		peer.AccountID = msg.TakerAccountID
		peer.PaymentAccountPayload = msg.TakerPaymentPayload
		peer.MultiSigPubKey = msg.TakerMultiSigPubKey
		peer.RawInputs = msg.TakerRawInputs
		peer.ChangeOutputValue = msg.TakerChangeValue
		peer.ChangeOutputAddress = msg.TakerChangeAddress
		peer.FeeTxID = msg.TakerFeeTxID

		c.Trade.SetPeerNodeAddress(c.Model.TempPeerNodeAddress)

		if _, err := c.Trade.AdvanceState(
			domain.StateMakerReceivedDepositInputsRequest,
		); err != nil {
			c.Fail(err.Error())
			return
		}
		c.Complete()
	},
}

// taskVerifyTakerFeePayment confirms the taker's fee transaction is known to
// the chain before the maker signs anything.
var taskVerifyTakerFeePayment = Task{
	Name: "VerifyTakerFeePayment",
	Run: func(c *TaskContext) {
		feeTxID := c.Model.TradingPeer().FeeTxID
		wallet := c.Services.Wallet
		c.Async(func() error {
			_, err := wallet.GetTxConfirmations(context.Background(), feeTxID)
			return err
		}, nil)
	},
}

// taskMakerCreateDepositTxInputs asks the wallet for the maker's deposit
// contribution. Same skip-on-rerun rule as the taker's task.
var taskMakerCreateDepositTxInputs = taskCreateDepositTxInputs

// taskMakerCreateAndSignContract builds the contract from the offer terms
// plus both peers' protocol data and signs it.
var taskMakerCreateAndSignContract = Task{
	Name: "MakerCreateAndSignContract",
	Run: func(c *TaskContext) {
		if len(c.Trade.ContractAsJSON) > 0 {
			c.Complete()
			return
		}

		myPayload, err := c.Services.Account.PaymentAccountPayload(
			c.Services.Account.AccountID())
		if err != nil {
			c.Fail(err.Error())
			return
		}
		peer := c.Model.TradingPeer()

		contract := &domain.Contract{
			OfferID:         c.Offer.ID,
			TradeID:         c.Trade.ID,
			BaseAsset:       c.Offer.BaseAsset,
			CounterAsset:    c.Offer.CounterAsset,
			Amount:          c.Offer.Amount,
			Price:           c.Offer.Price,
			ResolverAddress: c.Trade.ResolverAddress,
			TakerFeeTxID:    peer.FeeTxID,
		}
		if c.Trade.Role == domain.RoleBuyer {
			contract.BuyerNodeAddress = c.Services.MyNodeAddress
			contract.BuyerAccountID = c.Services.Account.AccountID()
			contract.BuyerPaymentPayload = myPayload
			contract.BuyerMultiSigPubKey = c.Model.MyMultiSigPubKey
			contract.SellerNodeAddress = peer.NodeAddress
			contract.SellerAccountID = peer.AccountID
			contract.SellerPaymentPayload = peer.PaymentAccountPayload
			contract.SellerMultiSigPubKey = peer.MultiSigPubKey
		} else {
			contract.SellerNodeAddress = c.Services.MyNodeAddress
			contract.SellerAccountID = c.Services.Account.AccountID()
			contract.SellerPaymentPayload = myPayload
			contract.SellerMultiSigPubKey = c.Model.MyMultiSigPubKey
			contract.BuyerNodeAddress = peer.NodeAddress
			contract.BuyerAccountID = peer.AccountID
			contract.BuyerPaymentPayload = peer.PaymentAccountPayload
			contract.BuyerMultiSigPubKey = peer.MultiSigPubKey
		}

		contractJSON, err := contract.AsJSON()
		if err != nil {
			c.Fail(err.Error())
			return
		}
		c.Trade.ContractAsJSON = contractJSON
		c.Trade.MyContractSignature = domain.SignContractJSON(
			contractJSON, c.Services.SigningKey,
		)
		c.Complete()
	},
}

// taskSendDepositInputsResponse answers the taker with the maker's deposit
// contribution and the signed contract.
var taskSendDepositInputsResponse = Task{
	Name: "SendDepositInputsResponse",
	Run: func(c *TaskContext) {
		myPayload, err := c.Services.Account.PaymentAccountPayload(
			c.Services.Account.AccountID())
		if err != nil {
			c.Fail(err.Error())
			return
		}

		msg := &domain.DepositInputsResponse{
			MessageMeta:         domain.NewMessageMeta(c.Trade.ID, c.Services.MyPubKey()),
			MakerAccountID:      c.Services.Account.AccountID(),
			MakerPaymentPayload: myPayload,
			MakerMultiSigPubKey: c.Model.MyMultiSigPubKey,
			MakerRawInputs:      c.Model.RawInputs,
			MakerChangeValue:    c.Model.ChangeOutputValue,
			MakerChangeAddress:  c.Model.ChangeOutputAddress,
			ContractAsJSON:      c.Trade.ContractAsJSON,
			ContractSignature:   c.Trade.MyContractSignature,
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
			_, err := trade.AdvanceState(domain.StateMakerSentDepositInputsResponse)
			return err
		})
	},
}

// taskProcessDepositTxMessage records the signed deposit tx received from
// the taker and the taker's contract countersignature.
var taskProcessDepositTxMessage = Task{
	Name: "ProcessDepositTxMessage",
	Run: func(c *TaskContext) {
		msg, ok := c.Model.TradeMessage.(*domain.DepositTxMessage)
		if !ok {
			c.Fail("unexpected message payload")
			return
		}
		if len(msg.DepositTx) == 0 || msg.DepositTxID == "" {
			c.Fail("deposit tx missing")
			return
		}

		if err := domain.VerifyContractSignature(
			c.Trade.ContractAsJSON, msg.ContractSignature,
			c.Model.TradingPeer().PubKey,
		); err != nil {
			c.Fail("taker contract signature invalid")
			return
		}
		c.Trade.PeerContractSignature = msg.ContractSignature

		if _, err := c.Trade.SetDepositTx(msg.DepositTx, msg.DepositTxID); err != nil {
			c.Fail(err.Error())
			return
		}
		if _, err := c.Trade.AdvanceState(
			domain.StateMakerReceivedDepositTxMessage,
		); err != nil {
			c.Fail(err.Error())
			return
		}
		c.Complete()
	},
}
