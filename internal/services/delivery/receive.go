package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
)

// HandleFrame dispatches a realtime notification. Unknown frame types are
// ignored.
func (c *Coordinator) HandleFrame(ctx context.Context, f domain.Frame) error {
	switch f.Type {
	case domain.FrameNewMessage:
		var m domain.Message
		if err := json.Unmarshal(f.Payload, &m); err != nil {
			return fmt.Errorf("decode %s: %w", f.Type, err)
		}
		return c.Receive(ctx, m)
	case domain.FrameMessageReceipt:
		var r domain.Receipt
		if err := json.Unmarshal(f.Payload, &r); err != nil {
			return fmt.Errorf("decode %s: %w", f.Type, err)
		}
		c.ApplyReceipt(r)
	}
	return nil
}

// Receive handles a message the relay already delivered. A delivered
// receipt goes out once per inbound id; the record only enters the history
// when it belongs to the open conversation, where it is then marked read.
func (c *Coordinator) Receive(ctx context.Context, m domain.Message) error {
	if m.ID == "" {
		return fmt.Errorf("%w: message without id", errs.ErrValidation)
	}
	c.bus.publish(Event{Kind: EventMessage, Message: m})

	inbound := m.SenderID != c.self
	var deliver bool
	var reads []domain.MessageID

	c.mu.Lock()
	if inbound {
		deliver = c.claim(m.ID, domain.ReceiptDelivered)
	}
	if c.hasOpen && c.open.Contains(m, c.self) {
		if _, dup := c.index[m.ID]; !dup {
			if m.Status == "" {
				m.Status = domain.StatusSent
			}
			c.insert(m)
		}
		if inbound {
			reads = c.markReadLocked([]domain.MessageID{m.ID})
		}
	}
	c.mu.Unlock()

	if deliver {
		c.dispatch(ctx, m.ID, domain.ReceiptDelivered)
	}
	for _, id := range reads {
		c.dispatch(ctx, id, domain.ReceiptRead)
	}
	return nil
}

// ApplyReceipt advances the status of a tracked message. Receipts never
// move a status backwards and repeated receipts change nothing.
func (c *Coordinator) ApplyReceipt(r domain.Receipt) {
	if !r.Kind.Valid() {
		return
	}
	c.mu.Lock()
	i, ok := c.index[r.MessageID]
	if !ok {
		c.mu.Unlock()
		return
	}
	rec := c.history[i]
	next, changed := rec.Status.Advance(r.Kind.Status())
	if changed {
		rec.Status = next
		c.history[i] = rec
	}
	c.mu.Unlock()

	if changed {
		c.bus.publish(Event{Kind: EventStatus, Message: rec})
	}
}

// OpenConversation makes conv the visible conversation, loads its history
// from the message store and marks unread inbound messages read.
func (c *Coordinator) OpenConversation(ctx context.Context, conv domain.Conversation) ([]domain.Message, error) {
	if err := validateTarget(conv); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.open, c.hasOpen = conv, true
	c.mu.Unlock()

	fetched, err := c.messages.FetchMessages(ctx, conv, domain.Page{Limit: historyLimit})
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	c.mu.Lock()
	// Records of other conversations stay tracked untouched. For conv the
	// fetched page is authoritative, and provisional sends are kept after it.
	local := make(map[domain.MessageID]domain.Message, len(c.history))
	var others, provisional []domain.Message
	for _, m := range c.history {
		local[m.ID] = m
		switch {
		case !conv.Contains(m, c.self):
			others = append(others, m)
		case m.ID.IsTemporary():
			provisional = append(provisional, m)
		}
	}
	c.history = others
	c.index = make(map[domain.MessageID]int, len(others)+len(fetched)+len(provisional))
	for i, m := range others {
		c.index[m.ID] = i
	}
	var unread []domain.MessageID
	for _, m := range fetched {
		if _, dup := c.index[m.ID]; dup {
			continue
		}
		if m.Status == "" {
			m.Status = domain.StatusSent
		}
		if prev, ok := local[m.ID]; ok {
			m.TempID = prev.TempID
			m.Status, _ = m.Status.Advance(prev.Status)
		}
		c.insert(m)
		if m.SenderID != c.self && m.Status != domain.StatusRead {
			unread = append(unread, m.ID)
		}
	}
	for _, m := range provisional {
		c.insert(m)
	}
	reads := c.markReadLocked(unread)
	out := c.visibleLocked()
	c.mu.Unlock()

	for _, id := range reads {
		c.dispatch(ctx, id, domain.ReceiptRead)
	}
	return out, nil
}

// CloseConversation stops inserting live messages into the history. Tracked
// records stay, so History shows all of them again.
func (c *Coordinator) CloseConversation() {
	c.mu.Lock()
	c.hasOpen = false
	c.mu.Unlock()
}

// MarkRead marks ids read locally and dispatches one read receipt per id
// that has not had one yet.
func (c *Coordinator) MarkRead(ctx context.Context, ids []domain.MessageID) {
	c.mu.Lock()
	reads := c.markReadLocked(ids)
	c.mu.Unlock()

	for _, id := range reads {
		c.dispatch(ctx, id, domain.ReceiptRead)
	}
}

// markReadLocked applies the local read mark first and returns the ids whose
// read receipt still has to be sent. Callers hold c.mu.
func (c *Coordinator) markReadLocked(ids []domain.MessageID) []domain.MessageID {
	var out []domain.MessageID
	for _, id := range ids {
		if i, ok := c.index[id]; ok {
			rec := c.history[i]
			if rec.SenderID == c.self {
				continue
			}
			if next, changed := rec.Status.Advance(domain.StatusRead); changed {
				rec.Status = next
				c.history[i] = rec
				c.bus.publish(Event{Kind: EventStatus, Message: rec})
			}
		}
		if c.claim(id, domain.ReceiptRead) {
			out = append(out, id)
		}
	}
	return out
}

// claim records that a receipt is going out and reports whether it was new.
// Callers hold c.mu.
func (c *Coordinator) claim(id domain.MessageID, kind domain.ReceiptKind) bool {
	k := receiptKey{id: id, kind: kind}
	if _, done := c.dispatched[k]; done {
		return false
	}
	c.dispatched[k] = struct{}{}
	return true
}

// dispatch sends one receipt in the background. Failures are logged and
// never touch local state.
func (c *Coordinator) dispatch(ctx context.Context, id domain.MessageID, kind domain.ReceiptKind) {
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.receipts.SubmitReceipt(ctx, id, kind); err != nil {
			c.log.Warn("receipt dispatch failed",
				zap.String("message_id", id.String()),
				zap.String("kind", string(kind)),
				zap.Error(errs.Wrap(errs.ErrReceiptDispatchFailed, err)),
			)
		}
	}()
}
