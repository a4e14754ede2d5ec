package ports

import (
	"context"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
)

// MessageListener receives decrypted trade messages addressed to this node.
// The mailbox flag is true on re-delivery of messages stored while this peer
// was offline.
type MessageListener func(msg domain.TradeMessage, from domain.NodeAddress, mailbox bool)

// TradeMessenger is the engine's view of the p2p transport layer. Delivery
// is best effort with transport-level retry and mailbox fallback; the engine
// does not run its own retry loop for sends.
type TradeMessenger interface {
	// Send delivers a message to an online peer.
	Send(ctx context.Context, to domain.NodeAddress, peerPubKey []byte, msg domain.TradeMessage) error
	// SendMailbox delivers a message with durable mailbox fallback for an
	// offline peer.
	SendMailbox(ctx context.Context, to domain.NodeAddress, peerPubKey []byte, msg domain.TradeMessage) error
	// AddListener subscribes to messages of one trade. One listener per
	// trade id; registration is scoped to the protocol instance lifetime.
	AddListener(tradeID string, l MessageListener)
	// RemoveListener drops the subscription during protocol teardown so
	// nothing is delivered to a torn-down instance.
	RemoveListener(tradeID string)
	// DeleteMailboxEntry removes a processed message from the mailbox so it
	// is not re-delivered on the next reconnect.
	DeleteMailboxEntry(tradeID, uid string)
}
