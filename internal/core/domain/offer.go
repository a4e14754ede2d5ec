package domain

import "github.com/shopspring/decimal"

// OfferDirection is the direction of the offer from the maker's point of
// view: a buy offer means the maker buys the base asset.
type OfferDirection int

const (
	OfferDirectionBuy OfferDirection = iota
	OfferDirectionSell
)

// Offer is a read-only snapshot of the offer terms the trade is based on.
// The offer book itself is outside the engine, so only the protocol-relevant
// fields are mirrored here.
type Offer struct {
	ID               string
	Direction        OfferDirection
	BaseAsset        string
	CounterAsset     string
	Amount           decimal.Decimal
	Price            decimal.Decimal
	MakerNodeAddress NodeAddress
	MakerPubKey      []byte
	MakerAccountID   string
	// ResolverAddresses is the ordered list of dispute resolvers the offer
	// advertises. The order is part of the offer terms: resolver selection
	// depends on it.
	ResolverAddresses []NodeAddress
}

// TradeIDFromOffer derives the globally unique trade id from the offer id.
// Both peers derive it independently, so it must be a pure function of the
// offer id.
func TradeIDFromOffer(offerID string) string {
	return offerID
}
