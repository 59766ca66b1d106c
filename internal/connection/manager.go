package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
)

// Config tunes reconnection and heartbeat. Zero fields take the defaults of
// DefaultConfig.
type Config struct {
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	MaxAttempts       int
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	Dialer            Dialer
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		MaxAttempts:       5,
		HeartbeatInterval: 30 * time.Second,
		WriteTimeout:      10 * time.Second,
		Dialer:            WebsocketDialer{},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.Dialer == nil {
		c.Dialer = d.Dialer
	}
	return c
}

// Handlers receive the Manager's notifications. Nil handlers are skipped.
// Handlers must not block for long; they run on the connection's goroutines.
type Handlers struct {
	OnMessage func(domain.Frame)
	OnStatus  func(Status)
	OnError   func(error)
}

// Manager owns a single logical connection to the hub.
type Manager struct {
	cfg Config
	log *zap.Logger

	mu        sync.Mutex
	status    Status
	gen       uint64
	target    string
	handlers  Handlers
	conn      Conn
	attempts  int
	cancel    context.CancelFunc
	reconnect *time.Timer
	hbStop    chan struct{}
	hbDone    chan struct{}

	writeMu sync.Mutex
}

// New returns a disconnected Manager.
func New(cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{cfg: cfg.withDefaults(), log: log}
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect starts connecting to endpoint, passing token as the "token" query
// parameter of the handshake. It replaces any previous connection, resets
// the attempt counter and returns before the dial completes.
func (m *Manager) Connect(endpoint, token string, h Handlers) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	m.mu.Lock()
	old, hbDone := m.teardownLocked()
	m.gen++
	gen := m.gen
	m.target = u.String()
	m.handlers = h
	m.attempts = 0
	m.mu.Unlock()

	if old != nil {
		_ = old.Close(CloseNormal, "reconnect")
	}
	waitClosed(hbDone)

	go m.dial(gen)
	return nil
}

// Disconnect closes the connection gracefully and cancels pending
// reconnects and heartbeats. Callbacks of the closed connection are ignored.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	old, hbDone := m.teardownLocked()
	m.gen++
	changed := m.status != StatusDisconnected
	m.status = StatusDisconnected
	h := m.handlers
	m.mu.Unlock()

	if old != nil {
		_ = old.Close(CloseNormal, "client disconnect")
	}
	waitClosed(hbDone)
	if changed && h.OnStatus != nil {
		h.OnStatus(StatusDisconnected)
	}
}

// Send writes v as JSON. It never queues: when the connection is not open
// it returns errs.ErrNotConnected.
func (m *Manager) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	conn := m.conn
	open := m.status == StatusConnected && conn != nil
	m.mu.Unlock()
	if !open {
		return errs.ErrNotConnected
	}
	return m.write(conn, b)
}

func (m *Manager) write(conn Conn, b []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, b)
}

// teardownLocked stops timers and the read loop and detaches the current
// connection. Callers hold m.mu and close the returned connection and wait
// for the heartbeat after unlocking.
func (m *Manager) teardownLocked() (Conn, chan struct{}) {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	hbDone := m.stopHeartbeatLocked()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	conn := m.conn
	m.conn = nil
	return conn, hbDone
}

func waitClosed(ch chan struct{}) {
	if ch != nil {
		<-ch
	}
}

func (m *Manager) setStatusLocked(s Status) (Handlers, bool) {
	changed := m.status != s
	m.status = s
	return m.handlers, changed
}

func (m *Manager) dial(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.reconnect = nil
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	target := m.target
	h, changed := m.setStatusLocked(StatusConnecting)
	m.mu.Unlock()
	if changed && h.OnStatus != nil {
		h.OnStatus(StatusConnecting)
	}

	conn, err := m.cfg.Dialer.Dial(ctx, target)
	if err != nil {
		m.closed(gen, err)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		_ = conn.Close(CloseNormal, "superseded")
		return
	}
	m.conn = conn
	m.attempts = 0
	m.startHeartbeatLocked(conn)
	h, _ = m.setStatusLocked(StatusConnected)
	m.mu.Unlock()

	m.log.Info("connected")
	if h.OnStatus != nil {
		h.OnStatus(StatusConnected)
	}
	m.readLoop(ctx, gen, conn)
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		b, err := conn.Read(ctx)
		if err != nil {
			m.closed(gen, err)
			return
		}
		var f domain.Frame
		if err := json.Unmarshal(b, &f); err != nil {
			m.log.Debug("ignoring malformed frame", zap.Error(err))
			continue
		}
		if f.Type == domain.FramePong {
			continue
		}

		m.mu.Lock()
		stale := gen != m.gen
		h := m.handlers
		m.mu.Unlock()
		if stale {
			return
		}
		if h.OnMessage != nil {
			h.OnMessage(f)
		}
	}
}

// closed handles the end of connection gen: a graceful close settles in
// Disconnected, an abnormal one schedules a reconnect until the attempt
// ceiling is reached.
func (m *Manager) closed(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	old, hbDone := m.teardownLocked()

	var ce *CloseError
	if errors.As(cause, &ce) && ce.Code == CloseNormal {
		h, changed := m.setStatusLocked(StatusDisconnected)
		m.mu.Unlock()
		m.finishClose(old, hbDone)
		m.log.Info("connection closed by peer")
		if changed && h.OnStatus != nil {
			h.OnStatus(StatusDisconnected)
		}
		return
	}

	m.attempts++
	attempt := m.attempts
	if attempt >= m.cfg.MaxAttempts {
		h, _ := m.setStatusLocked(StatusError)
		m.mu.Unlock()
		m.finishClose(old, hbDone)
		m.log.Warn("giving up reconnecting", zap.Int("attempt", attempt), zap.Error(cause))
		if h.OnStatus != nil {
			h.OnStatus(StatusError)
		}
		if h.OnError != nil {
			h.OnError(errs.Wrap(errs.ErrConnection, cause))
		}
		return
	}

	h, changed := m.setStatusLocked(StatusDisconnected)
	m.mu.Unlock()
	m.finishClose(old, hbDone)

	// The heartbeat has exited; only now may a reconnect be armed.
	delay := Delay(m.cfg.BaseDelay, m.cfg.MaxDelay, attempt)
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.reconnect = time.AfterFunc(delay, func() { m.dial(gen) })
	m.mu.Unlock()

	m.log.Info("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(cause))
	if changed && h.OnStatus != nil {
		h.OnStatus(StatusDisconnected)
	}
}

func (m *Manager) finishClose(old Conn, hbDone chan struct{}) {
	if old != nil {
		_ = old.Close(CloseNormal, "")
	}
	waitClosed(hbDone)
}

// ---------- Heartbeat ----------

var pingFrame = []byte(`{"type":"` + domain.FramePing + `"}`)

func (m *Manager) startHeartbeatLocked(conn Conn) {
	stop := make(chan struct{})
	done := make(chan struct{})
	m.hbStop, m.hbDone = stop, done

	go func() {
		defer close(done)
		t := time.NewTicker(m.cfg.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if err := m.write(conn, pingFrame); err != nil {
					m.log.Debug("heartbeat failed", zap.Error(err))
				}
			}
		}
	}()
}

func (m *Manager) stopHeartbeatLocked() chan struct{} {
	if m.hbStop == nil {
		return nil
	}
	close(m.hbStop)
	done := m.hbDone
	m.hbStop, m.hbDone = nil, nil
	return done
}
