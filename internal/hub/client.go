package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"cipherchat/internal/domain"
)

// Keepalive timing. Variables so tests can shorten them.
var (
	// Time allowed to write a message, or to get a pong back, from the peer.
	writeWait = 10 * time.Second

	// Time the peer may stay silent. Any frame or pong resets it.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

const (
	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// SendBuffer is the capacity of each connection's outbound queue.
	SendBuffer = 256
)

// Client is one live connection of one user.
type Client struct {
	userID    domain.UserID
	send      chan []byte
	closeOnce sync.Once
}

// NewClient returns an unregistered client for user with an empty queue.
func NewClient(user domain.UserID) *Client {
	return &Client{userID: user, send: make(chan []byte, SendBuffer)}
}

// UserID returns the owner of the connection.
func (c *Client) UserID() domain.UserID { return c.userID }

// Outbound is the queue drained by the connection's writer. It is closed
// when the client is unregistered.
func (c *Client) Outbound() <-chan []byte { return c.send }

func (c *Client) enqueue(b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// ServeWS upgrades the request and runs the client's pumps until the socket
// closes. userID must already be authenticated.
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request, userID domain.UserID, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	// Registered before the handshake completes so nothing sent after the
	// peer sees the upgrade is lost.
	c := NewClient(userID)
	h.Register(c)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.Unregister(c)
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	ctx, cancel := context.WithCancel(context.Background())
	p := &pumps{
		hub:    h,
		client: c,
		conn:   conn,
		log:    log.With(zap.String("user", userID.String())),
		ping:   pingPeriod,
		pong:   pongWait,
		write:  writeWait,
	}
	p.touch()
	go p.writePump(ctx, cancel)
	p.readPump(ctx, cancel)
}

type pumps struct {
	hub    *Hub
	client *Client
	conn   *websocket.Conn
	log    *zap.Logger

	ping, pong, write time.Duration
	lastSeen          atomic.Int64 // unix nanos of the last frame or pong
}

func (p *pumps) touch() { p.lastSeen.Store(time.Now().UnixNano()) }

func (p *pumps) silentFor() time.Duration {
	return time.Since(time.Unix(0, p.lastSeen.Load()))
}

// readPump handles inbound frames until the socket fails or closes.
func (p *pumps) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer func() {
		p.hub.Unregister(p.client)
		cancel()
		_ = p.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		// Liveness is enforced by writePump, which cancels ctx once the peer
		// stops answering pings.
		_, data, err := p.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				p.log.Debug("websocket closed")
			default:
				p.log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		p.touch()

		var f domain.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			p.log.Debug("ignoring malformed frame", zap.Error(err))
			continue
		}
		switch f.Type {
		case domain.FramePing:
			pong, err := domain.NewFrame(domain.FramePong, map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			if err != nil {
				continue
			}
			b, _ := json.Marshal(pong)
			if !p.hub.reply(p.client, b) {
				return
			}
		case domain.FrameMessageReceived:
			p.log.Debug("message received acknowledgement")
		default:
			p.log.Debug("unknown frame type", zap.String("type", f.Type))
		}
	}
}

// writePump drains the outbound queue to the socket and pings the peer.
func (p *pumps) writePump(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(p.ping)
	defer func() {
		ticker.Stop()
		cancel()
		_ = p.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.client.send:
			if !ok {
				// The hub dropped us; the peer should reconnect.
				_ = p.conn.Close(websocket.StatusGoingAway, "dropped")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, p.write)
			err := p.conn.Write(wctx, websocket.MessageText, msg)
			wcancel()
			if err != nil {
				p.log.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if d := p.silentFor(); d > p.pong {
				p.log.Debug("peer silent", zap.Duration("for", d))
				return
			}
			pctx, pcancel := context.WithTimeout(ctx, p.write)
			err := p.conn.Ping(pctx)
			pcancel()
			if err != nil {
				p.log.Debug("websocket ping failed", zap.Error(err))
				return
			}
			p.touch()
		}
	}
}
