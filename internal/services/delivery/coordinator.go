package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
)

const (
	// historyLimit bounds the page fetched when a conversation opens.
	historyLimit = 100

	// groupDevice is the device half of a group session id.
	groupDevice domain.DeviceID = "group"
	// defaultDevice stands in when a bundle or message names no device.
	defaultDevice domain.DeviceID = "default"
)

// Config wires a Coordinator to its collaborators. Keys may be nil, in which
// case only sessions established beforehand can be used.
type Config struct {
	Self       domain.UserID
	SelfDevice domain.DeviceID
	Sessions   domain.SessionManager
	Messages   domain.MessageStore
	Receipts   domain.ReceiptStore
	Keys       domain.KeyDirectory
	Log        *zap.Logger
	Now        func() time.Time
}

type outgoing struct {
	target  domain.Target
	content string
	typ     domain.MessageType
}

type receiptKey struct {
	id   domain.MessageID
	kind domain.ReceiptKind
}

// Coordinator is the Message Delivery Coordinator.
type Coordinator struct {
	self     domain.UserID
	device   domain.DeviceID
	sessions domain.SessionManager
	messages domain.MessageStore
	receipts domain.ReceiptStore
	keys     domain.KeyDirectory
	log      *zap.Logger
	now      func() time.Time
	bus      *bus

	mu sync.Mutex
	// history holds every tracked record across conversations, including
	// provisional sends; History filters it down to the open conversation.
	history     []domain.Message
	index       map[domain.MessageID]int
	outbox      map[domain.MessageID]outgoing
	open        domain.Conversation
	hasOpen     bool
	dispatched  map[receiptKey]struct{}
	peerDevices map[domain.UserID]domain.DeviceID

	wg sync.WaitGroup
}

// New returns a Coordinator for cfg.
func New(cfg Config) *Coordinator {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		self:        cfg.Self,
		device:      cfg.SelfDevice,
		sessions:    cfg.Sessions,
		messages:    cfg.Messages,
		receipts:    cfg.Receipts,
		keys:        cfg.Keys,
		log:         log,
		now:         now,
		bus:         newBus(log),
		index:       make(map[domain.MessageID]int),
		outbox:      make(map[domain.MessageID]outgoing),
		dispatched:  make(map[receiptKey]struct{}),
		peerDevices: make(map[domain.UserID]domain.DeviceID),
	}
}

// Subscribe returns a channel of events and a function that ends the
// subscription. Slow subscribers miss events rather than block delivery.
func (c *Coordinator) Subscribe() (<-chan Event, func()) { return c.bus.subscribe() }

// Wait blocks until every in-flight receipt dispatch has finished.
func (c *Coordinator) Wait() { c.wg.Wait() }

// History returns a copy of the visible history: the records of the open
// conversation, or every tracked record when none is open.
func (c *Coordinator) History() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visibleLocked()
}

// visibleLocked filters the tracked records. Callers hold c.mu.
func (c *Coordinator) visibleLocked() []domain.Message {
	out := make([]domain.Message, 0, len(c.history))
	for _, m := range c.history {
		if !c.hasOpen || c.open.Contains(m, c.self) {
			out = append(out, m)
		}
	}
	return out
}

// ConnectionStatus republishes a connection status change.
func (c *Coordinator) ConnectionStatus(status string) {
	c.bus.publish(Event{Kind: EventConnection, Connection: status})
}

// ---------- Send path ----------

// SendText sends a text message. On failure the returned record is the
// failed provisional entry, which stays in the history.
func (c *Coordinator) SendText(ctx context.Context, target domain.Target, text string) (domain.Message, error) {
	return c.send(ctx, target, text, domain.MessageText)
}

// SendFile sends a file message carrying fd as JSON.
func (c *Coordinator) SendFile(ctx context.Context, target domain.Target, fd domain.FileDescriptor) (domain.Message, error) {
	if strings.TrimSpace(fd.Name) == "" || strings.TrimSpace(fd.URL) == "" {
		return domain.Message{}, fmt.Errorf("%w: file needs a name and url", errs.ErrValidation)
	}
	b, err := json.Marshal(fd)
	if err != nil {
		return domain.Message{}, err
	}
	return c.send(ctx, target, string(b), domain.MessageFile)
}

// Retry replaces the failed record tempID with a fresh send of the same
// content.
func (c *Coordinator) Retry(ctx context.Context, tempID domain.MessageID) (domain.Message, error) {
	c.mu.Lock()
	i, ok := c.index[tempID]
	out, pending := c.outbox[tempID]
	if !ok || !pending || c.history[i].Status != domain.StatusFailed {
		c.mu.Unlock()
		return domain.Message{}, fmt.Errorf("%w: %s is not a failed send", errs.ErrValidation, tempID)
	}
	c.removeAt(i)
	delete(c.outbox, tempID)
	c.mu.Unlock()

	return c.send(ctx, out.target, out.content, out.typ)
}

func validateTarget(t domain.Target) error {
	if (t.UserID == "") == (t.GroupID == "") {
		return fmt.Errorf("%w: target needs exactly one of user or group", errs.ErrValidation)
	}
	return nil
}

func newTempID() (domain.MessageID, error) {
	u, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return domain.MessageID(domain.TempIDPrefix + u.String()), nil
}

func (c *Coordinator) send(ctx context.Context, target domain.Target, content string, typ domain.MessageType) (domain.Message, error) {
	if err := validateTarget(target); err != nil {
		return domain.Message{}, err
	}
	tempID, err := newTempID()
	if err != nil {
		return domain.Message{}, err
	}
	now := c.now().UTC()
	rec := domain.Message{
		ID:             tempID,
		TempID:         tempID,
		SenderID:       c.self,
		SenderDeviceID: c.device,
		RecipientID:    target.UserID,
		GroupID:        target.GroupID,
		Type:           typ,
		CreatedAt:      now,
		Status:         domain.StatusSending,
	}

	c.mu.Lock()
	c.outbox[tempID] = outgoing{target: target, content: content, typ: typ}
	c.mu.Unlock()

	payload, err := c.encrypt(ctx, target, domain.Envelope{
		MessageID:   tempID,
		SenderID:    c.self,
		RecipientID: target.UserID,
		GroupID:     target.GroupID,
		Content:     content,
		Type:        typ,
		Timestamp:   now.UnixMilli(),
	})
	if err != nil {
		rec.Status = domain.StatusFailed
		c.mu.Lock()
		c.insert(rec)
		c.mu.Unlock()
		c.bus.publish(Event{Kind: EventStatus, Message: rec})
		c.bus.publish(Event{Kind: EventError, Message: rec, Err: err})
		return rec, err
	}

	rec.Content = payload
	c.mu.Lock()
	c.insert(rec)
	c.mu.Unlock()
	c.bus.publish(Event{Kind: EventStatus, Message: rec})

	stored, err := c.messages.SubmitMessage(ctx, domain.SubmitRequest{
		RecipientID:      target.UserID,
		GroupID:          target.GroupID,
		SenderDeviceID:   c.device,
		EncryptedContent: payload,
		MessageType:      typ,
	})
	if err != nil {
		err = fmt.Errorf("submit message: %w", err)
		return c.fail(tempID, err), err
	}
	return c.confirm(tempID, rec, stored), nil
}

func (c *Coordinator) encrypt(ctx context.Context, target domain.Target, env domain.Envelope) (string, error) {
	sid, err := c.sessionFor(ctx, target)
	if err != nil {
		return "", err
	}
	return c.sessions.Encrypt(sid, env)
}

// fail moves the provisional record to failed.
func (c *Coordinator) fail(tempID domain.MessageID, cause error) domain.Message {
	c.mu.Lock()
	i, ok := c.index[tempID]
	if !ok {
		c.mu.Unlock()
		return domain.Message{}
	}
	rec := c.history[i]
	rec.Status, _ = rec.Status.Advance(domain.StatusFailed)
	c.history[i] = rec
	c.mu.Unlock()

	c.log.Warn("send failed", zap.String("temp_id", tempID.String()), zap.Error(cause))
	c.bus.publish(Event{Kind: EventStatus, Message: rec})
	c.bus.publish(Event{Kind: EventError, Message: rec, Err: cause})
	return rec
}

// confirm replaces the provisional record with the relay's record in the
// same history slot.
func (c *Coordinator) confirm(tempID domain.MessageID, provisional, stored domain.Message) domain.Message {
	stored.TempID = tempID
	if stored.SenderID == "" {
		stored.SenderID = provisional.SenderID
	}
	if stored.SenderDeviceID == "" {
		stored.SenderDeviceID = provisional.SenderDeviceID
	}
	if stored.RecipientID == "" && stored.GroupID == "" {
		stored.RecipientID, stored.GroupID = provisional.RecipientID, provisional.GroupID
	}
	if stored.Content == "" {
		stored.Content = provisional.Content
	}
	if stored.Type == "" {
		stored.Type = provisional.Type
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = provisional.CreatedAt
	}
	status := domain.StatusSent
	if next, changed := status.Advance(stored.Status); changed {
		status = next
	}
	stored.Status = status

	c.mu.Lock()
	delete(c.outbox, tempID)
	i, ok := c.index[tempID]
	if ok {
		delete(c.index, tempID)
	}
	switch j, dup := c.index[stored.ID]; {
	case dup:
		// The relay's record arrived first through another path.
		merged := c.history[j]
		merged.TempID = tempID
		merged.Status, _ = merged.Status.Advance(stored.Status)
		c.history[j] = merged
		stored = merged
		if ok {
			c.removeAt(i)
		}
	case ok:
		c.history[i] = stored
		c.index[stored.ID] = i
	default:
		c.insert(stored)
	}
	c.mu.Unlock()

	c.bus.publish(Event{Kind: EventStatus, Message: stored})
	return stored
}

// insert appends rec. Callers hold c.mu.
func (c *Coordinator) insert(rec domain.Message) {
	c.history = append(c.history, rec)
	c.index[rec.ID] = len(c.history) - 1
}

// removeAt drops the record at i and reindexes. Callers hold c.mu.
func (c *Coordinator) removeAt(i int) {
	delete(c.index, c.history[i].ID)
	c.history = append(c.history[:i], c.history[i+1:]...)
	for j := i; j < len(c.history); j++ {
		c.index[c.history[j].ID] = j
	}
}

// ---------- Sessions ----------

func (c *Coordinator) sessionFor(ctx context.Context, target domain.Target) (domain.SessionID, error) {
	if target.IsGroup() {
		return c.groupSession(target.GroupID)
	}

	c.mu.Lock()
	device, known := c.peerDevices[target.UserID]
	c.mu.Unlock()
	if known {
		sid := domain.SessionIDFor(target.UserID, device)
		if _, ok, err := c.sessions.Session(sid); err != nil {
			return "", err
		} else if ok {
			return sid, nil
		}
	}
	if sess, ok, err := c.storedSession(target.UserID); err != nil {
		return "", err
	} else if ok {
		c.rememberDevice(target.UserID, sess.PeerDeviceID)
		return sess.ID, nil
	}
	if c.keys == nil {
		return "", fmt.Errorf("%w: no session with %s", errs.ErrSessionNotFound, target.UserID)
	}

	bundle, err := c.keys.FetchBundle(ctx, target.UserID)
	if err != nil {
		return "", fmt.Errorf("fetch bundle for %s: %w", target.UserID, err)
	}
	device = bundle.DeviceID
	if device == "" {
		device = defaultDevice
	}
	sess, err := c.sessions.EstablishSession(target.UserID, device, bundle)
	if err != nil {
		return "", err
	}
	c.rememberDevice(target.UserID, device)
	return sess.ID, nil
}

// storedSession finds the most recently used live session with peer among
// those already persisted, so a new process keeps using it instead of
// claiming another prekey.
func (c *Coordinator) storedSession(peer domain.UserID) (domain.Session, bool, error) {
	all, err := c.sessions.Sessions()
	if err != nil {
		return domain.Session{}, false, err
	}
	var best domain.Session
	var found bool
	for _, sess := range all {
		if sess.PeerID != peer || sess.PeerDeviceID == groupDevice || sess.State == domain.SessionExpired {
			continue
		}
		if !found || sess.LastUsedAt.After(best.LastUsedAt) {
			best, found = sess, true
		}
	}
	return best, found, nil
}

// groupSession returns the shared session of a group, creating it from a
// bundle derived from the group id.
func (c *Coordinator) groupSession(groupID string) (domain.SessionID, error) {
	sid := domain.SessionIDFor(domain.UserID(groupID), groupDevice)
	if _, ok, err := c.sessions.Session(sid); err != nil {
		return "", err
	} else if ok {
		return sid, nil
	}
	sess, err := c.sessions.EstablishSession(domain.UserID(groupID), groupDevice, domain.PrekeyBundle{
		IdentityKey: groupID,
		PreKey:      groupID,
	})
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// inboundSession resolves the session that decrypts m.
func (c *Coordinator) inboundSession(ctx context.Context, m domain.Message) (domain.SessionID, error) {
	if m.GroupID != "" {
		return c.groupSession(m.GroupID)
	}
	if m.SenderID == c.self {
		return c.sessionFor(ctx, domain.Target{UserID: m.RecipientID})
	}

	device := m.SenderDeviceID
	if device == "" {
		device = defaultDevice
	}
	sid := domain.SessionIDFor(m.SenderID, device)
	if _, ok, err := c.sessions.Session(sid); err != nil {
		return "", err
	} else if ok {
		c.rememberDevice(m.SenderID, device)
		return sid, nil
	}
	if c.keys == nil {
		return "", fmt.Errorf("%w: no session with %s", errs.ErrSessionNotFound, m.SenderID)
	}
	bundle, err := c.keys.FetchBundle(ctx, m.SenderID)
	if err != nil {
		return "", fmt.Errorf("fetch bundle for %s: %w", m.SenderID, err)
	}
	sess, err := c.sessions.EstablishSession(m.SenderID, device, bundle)
	if err != nil {
		return "", err
	}
	c.rememberDevice(m.SenderID, device)
	return sess.ID, nil
}

func (c *Coordinator) rememberDevice(user domain.UserID, device domain.DeviceID) {
	c.mu.Lock()
	c.peerDevices[user] = device
	c.mu.Unlock()
}

// Plaintext decrypts the content of m.
func (c *Coordinator) Plaintext(ctx context.Context, m domain.Message) (domain.Envelope, error) {
	sid, err := c.inboundSession(ctx, m)
	if err != nil {
		return domain.Envelope{}, err
	}
	return c.sessions.Decrypt(sid, m.Content)
}

// Verify returns the safety number for a peer device. Failures are also
// published as error events.
func (c *Coordinator) Verify(peer domain.UserID, device domain.DeviceID) (domain.VerificationCode, error) {
	code, err := c.sessions.VerificationCode(peer, device)
	if err != nil {
		c.bus.publish(Event{Kind: EventError, Err: err})
		return domain.VerificationCode{}, err
	}
	return code, nil
}
