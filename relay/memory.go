package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryHub is an in-process relay connecting any number of peers.
// Delivery is synchronous into buffered per-peer channels.
type MemoryHub struct {
	mu    sync.Mutex
	peers map[string]*MemoryPeer
	next  int
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{peers: make(map[string]*MemoryPeer)}
}

// Join attaches a new peer to the hub.
func (h *MemoryHub) Join() *MemoryPeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	p := &MemoryPeer{
		hub:    h,
		id:     fmt.Sprintf("peer-%d", h.next),
		inbox:  make(chan *Message, 256),
	}
	h.peers[p.id] = p
	return p
}

func (h *MemoryHub) broadcast(from, msgType string, payload json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, p := range h.peers {
		if id == from {
			continue
		}
		p.deliver(&Message{Type: msgType, Payload: payload, FromPeerID: from})
	}
}

func (h *MemoryHub) sendTo(from, to, msgType string, payload json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.peers[to]; ok {
		p.deliver(&Message{Type: msgType, Payload: payload, FromPeerID: from})
	}
}

func (h *MemoryHub) leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, id)
}

// MemoryPeer is one hub attachment implementing Relay.
type MemoryPeer struct {
	hub    *MemoryHub
	id     string
	inbox  chan *Message
	closed sync.Once
}

// Broadcast implements Relay.
func (p *MemoryPeer) Broadcast(_ context.Context, msgType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.hub.broadcast(p.id, msgType, data)
	return nil
}

// SendTo implements Relay.
func (p *MemoryPeer) SendTo(_ context.Context, peerID, msgType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.hub.sendTo(p.id, peerID, msgType, data)
	return nil
}

// Messages implements Relay.
func (p *MemoryPeer) Messages() <-chan *Message {
	return p.inbox
}

// PeerID implements Relay.
func (p *MemoryPeer) PeerID() string {
	return p.id
}

// Close implements Relay.
func (p *MemoryPeer) Close() error {
	p.closed.Do(func() {
		p.hub.leave(p.id)
		close(p.inbox)
	})
	return nil
}

func (p *MemoryPeer) deliver(m *Message) {
	select {
	case p.inbox <- m:
	default:
		// Slow peer: drop rather than block the hub.
	}
}
