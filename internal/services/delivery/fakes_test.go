package delivery_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
)

type fakeMessages struct {
	mu        sync.Mutex
	submitted []domain.SubmitRequest
	history   []domain.Message
	failNext  error
	self      domain.UserID
}

var _ domain.MessageStore = (*fakeMessages)(nil)

func (f *fakeMessages) SubmitMessage(_ context.Context, req domain.SubmitRequest) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return domain.Message{}, err
	}
	f.submitted = append(f.submitted, req)
	return domain.Message{
		ID:             domain.MessageID(fmt.Sprintf("srv-%d", len(f.submitted))),
		SenderID:       f.self,
		SenderDeviceID: req.SenderDeviceID,
		RecipientID:    req.RecipientID,
		GroupID:        req.GroupID,
		Content:        req.EncryptedContent,
		Type:           req.MessageType,
		CreatedAt:      time.Unix(1700000000, 0).UTC(),
		Status:         domain.StatusSent,
	}, nil
}

func (f *fakeMessages) FetchMessages(_ context.Context, conv domain.Conversation, _ domain.Page) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, m := range f.history {
		if conv.Contains(m, f.self) {
			out = append(out, m)
		}
	}
	return out, nil
}

type sentReceipt struct {
	id   domain.MessageID
	kind domain.ReceiptKind
}

type fakeReceipts struct {
	mu   sync.Mutex
	sent []sentReceipt
	err  error
}

var _ domain.ReceiptStore = (*fakeReceipts)(nil)

func (f *fakeReceipts) SubmitReceipt(_ context.Context, id domain.MessageID, kind domain.ReceiptKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentReceipt{id: id, kind: kind})
	return f.err
}

func (f *fakeReceipts) count(kind domain.ReceiptKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.sent {
		if r.kind == kind {
			n++
		}
	}
	return n
}

type fakeKeys struct {
	bundles map[domain.UserID]domain.PrekeyBundle
}

var _ domain.KeyDirectory = (*fakeKeys)(nil)

func (f *fakeKeys) PublishBundle(_ context.Context, b domain.PrekeyBundle) error {
	f.bundles[b.UserID] = b
	return nil
}

func (f *fakeKeys) FetchBundle(_ context.Context, user domain.UserID) (domain.PrekeyBundle, error) {
	b, ok := f.bundles[user]
	if !ok {
		return domain.PrekeyBundle{}, errs.ErrNotFound
	}
	return b, nil
}

var errRelayDown = errors.New("relay down")
