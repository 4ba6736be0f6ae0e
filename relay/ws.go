package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.vocdoni.io/dvote/log"
)

// Relay protocol frame types reserved by the server.
const (
	frameWelcome    = "welcome"
	framePeerJoined = "peer:joined"
	framePeerLeft   = "peer:left"
	frameP2P        = "p2p"
)

// wsFrame is the wire format of every relay frame in both directions.
type wsFrame struct {
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	FromPeerID   string          `json:"from_peer_id,omitempty"`
	TargetPeerID string          `json:"target_peer_id,omitempty"`
	PeerID       string          `json:"peer_id,omitempty"`
	ClientCount  int             `json:"client_count,omitempty"`
}

// WSClient is a websocket relay attachment with automatic reconnection.
type WSClient struct {
	url          string
	dialTimeout  time.Duration
	maxAttempts  int

	mu     sync.Mutex
	conn   *websocket.Conn
	peerID string
	closed bool

	inbox  chan *Message
	cancel context.CancelFunc
}

// NewWSClient connects to the relay at url and starts the read loop. The
// connection is retried with exponential backoff, both initially and after
// a drop, up to maxAttempts per outage.
func NewWSClient(ctx context.Context, url string, dialTimeout time.Duration, maxAttempts int) (*WSClient, error) {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	c := &WSClient{
		url:         url,
		dialTimeout: dialTimeout,
		maxAttempts: maxAttempts,
		inbox:       make(chan *Message, 256),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.readLoop(runCtx)
	return c, nil
}

func (c *WSClient) connect(ctx context.Context) error {
	op := func() error {
		dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()
		conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
		if err != nil {
			log.Warnw("relay dial failed", "url", c.url, "error", err)
			return err
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		return nil
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxAttempts)), ctx)
	return backoff.Retry(op, bo)
}

// readLoop pumps frames into the inbox, reconnecting on failure until the
// client is closed or the backoff budget is spent.
func (c *WSClient) readLoop(ctx context.Context) {
	defer close(c.inbox)
	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed || conn == nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.mu.Lock()
			closed = c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			log.Warnw("relay connection lost, reconnecting", "error", err)
			if err := c.connect(ctx); err != nil {
				log.Errorf("relay reconnection exhausted: %v", err)
				return
			}
			continue
		}
		frame := &wsFrame{}
		if err := json.Unmarshal(data, frame); err != nil {
			log.Warnw("malformed relay frame", "error", err)
			continue
		}
		switch frame.Type {
		case frameWelcome:
			c.mu.Lock()
			c.peerID = frame.PeerID
			c.mu.Unlock()
			log.Infow("relay welcome", "peerID", frame.PeerID, "clients", frame.ClientCount)
		case framePeerJoined, framePeerLeft:
			log.Debugw("relay peer change", "type", frame.Type, "peerID", frame.PeerID)
		default:
			select {
			case c.inbox <- &Message{Type: frame.Type, Payload: frame.Payload, FromPeerID: frame.FromPeerID}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Broadcast implements Relay.
func (c *WSClient) Broadcast(_ context.Context, msgType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.write(&wsFrame{Type: msgType, Payload: data})
}

// SendTo implements Relay with a targeted p2p frame.
func (c *WSClient) SendTo(_ context.Context, peerID, msgType string, payload any) error {
	inner, err := json.Marshal(&wsFrame{Type: msgType, Payload: mustRaw(payload)})
	if err != nil {
		return err
	}
	return c.write(&wsFrame{Type: frameP2P, TargetPeerID: peerID, Payload: inner})
}

// Messages implements Relay.
func (c *WSClient) Messages() <-chan *Message {
	return c.inbox
}

// PeerID implements Relay.
func (c *WSClient) PeerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

// Close implements Relay.
func (c *WSClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *WSClient) write(frame *wsFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return fmt.Errorf("relay not connected")
	}
	return c.conn.WriteJSON(frame)
}

func mustRaw(payload any) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
