package domain

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/google/uuid"
)

// MessageType discriminates the trade messages exchanged by the two peers.
type MessageType int

const (
	MessageTypeDepositInputsRequest MessageType = iota
	MessageTypeDepositInputsResponse
	MessageTypeDepositTx
	MessageTypePaymentStarted
	MessageTypePayoutTxPublished
	MessageTypeAck
)

func (m MessageType) String() string {
	switch m {
	case MessageTypeDepositInputsRequest:
		return "DepositInputsRequest"
	case MessageTypeDepositInputsResponse:
		return "DepositInputsResponse"
	case MessageTypeDepositTx:
		return "DepositTx"
	case MessageTypePaymentStarted:
		return "PaymentStarted"
	case MessageTypePayoutTxPublished:
		return "PayoutTxPublished"
	default:
		return "Ack"
	}
}

// TradeMessage is a decrypted, sender-authenticated message belonging to one
// trade. The transport layer handles encryption and wire encoding; the
// engine only sees these structs.
type TradeMessage interface {
	GetTradeID() string
	GetUID() string
	Type() MessageType
	GetSenderPubKey() []byte
	GetSignature() []byte
	// SignedPayload returns the bytes the sender signature covers, that is
	// the message serialized with an empty signature field.
	SignedPayload() ([]byte, error)
}

// MessageMeta carries the fields common to every trade message.
type MessageMeta struct {
	TradeID      string
	UID          string
	SenderPubKey []byte
	Signature    []byte
}

func NewMessageMeta(tradeID string, senderPubKey []byte) MessageMeta {
	return MessageMeta{
		TradeID:      tradeID,
		UID:          uuid.New().String(),
		SenderPubKey: senderPubKey,
	}
}

func (m MessageMeta) GetTradeID() string      { return m.TradeID }
func (m MessageMeta) GetUID() string          { return m.UID }
func (m MessageMeta) GetSenderPubKey() []byte { return m.SenderPubKey }
func (m MessageMeta) GetSignature() []byte    { return m.Signature }

// DepositInputsRequest is sent by the taker to the maker after publishing
// the taker fee tx. It carries everything the maker needs to build and sign
// the contract and contribute its deposit inputs.
type DepositInputsRequest struct {
	MessageMeta
	TakerNodeAddress    NodeAddress
	TakerAccountID      string
	TakerPaymentPayload json.RawMessage
	TakerMultiSigPubKey []byte
	TakerRawInputs      []RawInput
	TakerChangeValue    uint64
	TakerChangeAddress  string
	TakerFeeTxID        string
}

func (m *DepositInputsRequest) Type() MessageType { return MessageTypeDepositInputsRequest }

func (m *DepositInputsRequest) SignedPayload() ([]byte, error) {
	c := *m
	c.Signature = nil
	return json.Marshal(c)
}

// DepositInputsResponse is the maker's answer: its own deposit inputs, its
// multisig pubkey, and the contract it created and signed.
type DepositInputsResponse struct {
	MessageMeta
	MakerAccountID      string
	MakerPaymentPayload json.RawMessage
	MakerMultiSigPubKey []byte
	MakerRawInputs      []RawInput
	MakerChangeValue    uint64
	MakerChangeAddress  string
	ContractAsJSON      []byte
	ContractSignature   []byte
}

func (m *DepositInputsResponse) Type() MessageType { return MessageTypeDepositInputsResponse }

func (m *DepositInputsResponse) SignedPayload() ([]byte, error) {
	c := *m
	c.Signature = nil
	return json.Marshal(c)
}

// DepositTxMessage carries the fully signed deposit transaction. It is sent
// to the peer before the tx is broadcast so that both sides know the
// transaction even if the broadcast succeeds and the sender crashes right
// after.
type DepositTxMessage struct {
	MessageMeta
	DepositTx         []byte
	DepositTxID       string
	ContractSignature []byte
}

func (m *DepositTxMessage) Type() MessageType { return MessageTypeDepositTx }

func (m *DepositTxMessage) SignedPayload() ([]byte, error) {
	c := *m
	c.Signature = nil
	return json.Marshal(c)
}

// PaymentStartedMessage is sent by the buyer once the counter-asset payment
// has been initiated. It carries the buyer's payout signature so the seller
// can finalize the payout unilaterally after confirming receipt. Delivered
// via mailbox when the seller is offline.
type PaymentStartedMessage struct {
	MessageMeta
	PayoutTxSignature   []byte
	CounterCurrencyTxID string
}

func (m *PaymentStartedMessage) Type() MessageType { return MessageTypePaymentStarted }

func (m *PaymentStartedMessage) SignedPayload() ([]byte, error) {
	c := *m
	c.Signature = nil
	return json.Marshal(c)
}

// PayoutTxPublishedMessage tells the buyer the payout transaction was
// broadcast. Delivered via mailbox when the buyer is offline.
type PayoutTxPublishedMessage struct {
	MessageMeta
	PayoutTx   []byte
	PayoutTxID string
}

func (m *PayoutTxPublishedMessage) Type() MessageType { return MessageTypePayoutTxPublished }

func (m *PayoutTxPublishedMessage) SignedPayload() ([]byte, error) {
	c := *m
	c.Signature = nil
	return json.Marshal(c)
}

// AckMessage confirms (or reports failure of) the processing of a previously
// received trade message, correlated by the source message uid.
type AckMessage struct {
	MessageMeta
	SourceMsgType MessageType
	SourceUID     string
	Success       bool
	ErrorMessage  string
}

func (m *AckMessage) Type() MessageType { return MessageTypeAck }

func (m *AckMessage) SignedPayload() ([]byte, error) {
	c := *m
	c.Signature = nil
	return json.Marshal(c)
}

// SignMessage computes the sender signature of the message. It must be
// called after all payload fields are set.
func SignMessage(msg TradeMessage, key *btcec.PrivateKey) ([]byte, error) {
	payload, err := msg.SignedPayload()
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(payload)
	return ecdsa.Sign(key, digest[:]).Serialize(), nil
}

// VerifyMessageSignature checks the message signature against the expected
// signing pubkey. Pass the sender's own claimed pubkey only for the first
// message of a trade (bootstrap); afterwards the pubkey on file for the
// trading peer must be used.
func VerifyMessageSignature(msg TradeMessage, pubKey []byte) error {
	pk, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return ErrInvalidPubKey
	}
	sig, err := ecdsa.ParseDERSignature(msg.GetSignature())
	if err != nil {
		return ErrInvalidSignature
	}
	payload, err := msg.SignedPayload()
	if err != nil {
		return err
	}
	digest := sha256.Sum256(payload)
	if !sig.Verify(digest[:], pk) {
		return ErrInvalidSignature
	}
	return nil
}
