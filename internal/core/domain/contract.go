package domain

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/shopspring/decimal"
)

// Contract holds the agreed trade terms. It is serialized to canonical JSON
// and signed by both parties; the JSON bytes plus both signatures travel
// with the trade and are what a dispute resolver adjudicates on.
type Contract struct {
	OfferID              string
	TradeID              string
	BaseAsset            string
	CounterAsset         string
	Amount               decimal.Decimal
	Price                decimal.Decimal
	BuyerNodeAddress     NodeAddress
	SellerNodeAddress    NodeAddress
	BuyerAccountID       string
	SellerAccountID      string
	BuyerPaymentPayload  json.RawMessage
	SellerPaymentPayload json.RawMessage
	BuyerMultiSigPubKey  []byte
	SellerMultiSigPubKey []byte
	ResolverAddress      NodeAddress
	TakerFeeTxID         string
}

// AsJSON returns the canonical serialization both parties sign.
func (c *Contract) AsJSON() ([]byte, error) {
	return json.Marshal(c)
}

// Hash returns the sha256 digest of the canonical serialization.
func (c *Contract) Hash() ([]byte, error) {
	raw, err := c.AsJSON()
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256(raw)
	return h[:], nil
}

// SignContractJSON signs the given contract JSON with the local signing key.
func SignContractJSON(contractJSON []byte, key *btcec.PrivateKey) []byte {
	digest := sha256.Sum256(contractJSON)
	return ecdsa.Sign(key, digest[:]).Serialize()
}

// VerifyContractSignature checks a peer's signature over the contract JSON
// against its serialized compressed public key.
func VerifyContractSignature(contractJSON, sig, pubKey []byte) error {
	pk, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return ErrInvalidPubKey
	}
	parsedSig, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	digest := sha256.Sum256(contractJSON)
	if !parsedSig.Verify(digest[:], pk) {
		return ErrInvalidSignature
	}
	return nil
}
