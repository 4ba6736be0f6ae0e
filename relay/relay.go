// Package relay abstracts the broadcast bus delivering signed gossip
// envelopes between peers. The core depends only on the Relay interface;
// the websocket client and the in-memory hub are interchangeable at the
// gossip boundary.
package relay

import (
	"context"
	"encoding/json"
)

// Message is an application frame received from the bus. FromPeerID is the
// relay-attached origin; the authenticated sender lives inside the payload
// envelope.
type Message struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	FromPeerID string          `json:"from_peer_id,omitempty"`
}

// Relay is the broadcast bus interface.
type Relay interface {
	// Broadcast delivers the payload to every connected peer.
	Broadcast(ctx context.Context, msgType string, payload any) error
	// SendTo delivers the payload to a single peer.
	SendTo(ctx context.Context, peerID, msgType string, payload any) error
	// Messages is the stream of inbound application frames. It is
	// closed when the relay shuts down.
	Messages() <-chan *Message
	// PeerID returns this client's relay-assigned identifier, empty
	// until the welcome frame arrives.
	PeerID() string
	// Close tears the connection down.
	Close() error
}
