package inproc

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/peerex-network/peerex-daemon/internal/core/domain"
	"github.com/peerex-network/peerex-daemon/internal/core/ports"
)

// Hub routes trade messages between nodes living in the same process. It is
// the transport used by the simnet profile and by integration tests: the
// delivery semantics match the real p2p layer, including the mailbox
// fallback for nodes that have no listener registered yet.
type Hub struct {
	lock  sync.Mutex
	nodes map[domain.NodeAddress]*messenger
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{nodes: make(map[domain.NodeAddress]*messenger)}
}

// Join registers a node on the hub and returns its messenger. Joining twice
// with the same address returns the existing messenger.
func (h *Hub) Join(addr domain.NodeAddress) ports.TradeMessenger {
	h.lock.Lock()
	defer h.lock.Unlock()

	if m, ok := h.nodes[addr]; ok {
		return m
	}
	m := &messenger{
		hub:       h,
		addr:      addr,
		listeners: make(map[string]ports.MessageListener),
		mailbox:   make(map[string][]mailboxEntry),
	}
	h.nodes[addr] = m
	return m
}

func (h *Hub) node(addr domain.NodeAddress) (*messenger, bool) {
	h.lock.Lock()
	defer h.lock.Unlock()
	m, ok := h.nodes[addr]
	return m, ok
}

type mailboxEntry struct {
	msg  domain.TradeMessage
	from domain.NodeAddress
}

type messenger struct {
	hub  *Hub
	addr domain.NodeAddress

	lock      sync.Mutex
	listeners map[string]ports.MessageListener
	// mailbox keeps messages that arrived for a trade with no registered
	// listener, keyed by trade id, re-delivered on the next AddListener.
	mailbox map[string][]mailboxEntry
}

func (m *messenger) Send(
	ctx context.Context, to domain.NodeAddress, _ []byte, msg domain.TradeMessage,
) error {
	peer, ok := m.hub.node(to)
	if !ok {
		return fmt.Errorf("peer %s not reachable", to)
	}
	if !peer.deliver(msg, m.addr, false) {
		return fmt.Errorf("peer %s has no handler for trade %s", to, msg.GetTradeID())
	}
	return nil
}

func (m *messenger) SendMailbox(
	ctx context.Context, to domain.NodeAddress, _ []byte, msg domain.TradeMessage,
) error {
	peer, ok := m.hub.node(to)
	if !ok {
		return fmt.Errorf("peer %s not reachable", to)
	}
	if peer.deliver(msg, m.addr, false) {
		return nil
	}
	peer.store(msg, m.addr)
	return nil
}

func (m *messenger) AddListener(tradeID string, l ports.MessageListener) {
	m.lock.Lock()
	m.listeners[tradeID] = l
	pending := m.mailbox[tradeID]
	m.lock.Unlock()

	for _, e := range pending {
		l(e.msg, e.from, true)
	}
}

func (m *messenger) RemoveListener(tradeID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.listeners, tradeID)
}

func (m *messenger) DeleteMailboxEntry(tradeID, uid string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	pending := m.mailbox[tradeID]
	for i, e := range pending {
		if e.msg.GetUID() == uid {
			m.mailbox[tradeID] = append(pending[:i], pending[i+1:]...)
			return
		}
	}
}

func (m *messenger) deliver(msg domain.TradeMessage, from domain.NodeAddress, mailbox bool) bool {
	m.lock.Lock()
	l, ok := m.listeners[msg.GetTradeID()]
	m.lock.Unlock()
	if !ok {
		return false
	}
	l(msg, from, mailbox)
	return true
}

func (m *messenger) store(msg domain.TradeMessage, from domain.NodeAddress) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.mailbox[msg.GetTradeID()] = append(
		m.mailbox[msg.GetTradeID()], mailboxEntry{msg: msg, from: from},
	)
	log.WithField("trade", msg.GetTradeID()).WithField("type", msg.Type()).
		Debug("message stored in mailbox")
}
