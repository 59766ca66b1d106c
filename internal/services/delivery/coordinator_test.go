package delivery_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
	"cipherchat/internal/services/delivery"
	"cipherchat/internal/services/session"
	"cipherchat/internal/store"
)

type harness struct {
	coord    *delivery.Coordinator
	messages *fakeMessages
	receipts *fakeReceipts
	keys     *fakeKeys
	sessions *session.Manager
}

func newHarness(t *testing.T, self domain.UserID, opts ...session.Option) *harness {
	t.Helper()
	h := &harness{
		messages: &fakeMessages{self: self},
		receipts: &fakeReceipts{},
		keys: &fakeKeys{bundles: map[domain.UserID]domain.PrekeyBundle{
			"bob":   {UserID: "bob", DeviceID: "devB", IdentityKey: "idB", PreKey: "pkB"},
			"alice": {UserID: "alice", DeviceID: "devA", IdentityKey: "idA", PreKey: "pkA"},
		}},
		sessions: session.New(store.NewKeyStore(store.NewMemoryKV()), opts...),
	}
	h.coord = delivery.New(delivery.Config{
		Self:       self,
		SelfDevice: "dev-" + domain.DeviceID(self),
		Sessions:   h.sessions,
		Messages:   h.messages,
		Receipts:   h.receipts,
		Keys:       h.keys,
	})
	return h
}

func drain(ch <-chan delivery.Event) []delivery.Event {
	var out []delivery.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSendText_ReplacesTemporaryRecord(t *testing.T) {
	h := newHarness(t, "alice")
	events, cancel := h.coord.Subscribe()
	defer cancel()

	msg, err := h.coord.SendText(context.Background(), domain.Target{UserID: "bob"}, "hello")
	require.NoError(t, err)
	require.Equal(t, domain.MessageID("srv-1"), msg.ID)
	require.True(t, msg.TempID.IsTemporary())
	require.Equal(t, domain.StatusSent, msg.Status)

	hist := h.coord.History()
	require.Len(t, hist, 1)
	require.Equal(t, msg, hist[0])

	var statuses []domain.MessageStatus
	for _, ev := range drain(events) {
		if ev.Kind == delivery.EventStatus {
			statuses = append(statuses, ev.Message.Status)
		}
	}
	require.Equal(t, []domain.MessageStatus{domain.StatusSending, domain.StatusSent}, statuses)

	require.Len(t, h.messages.submitted, 1)
	require.Equal(t, domain.DeviceID("dev-alice"), h.messages.submitted[0].SenderDeviceID)
	require.NotContains(t, h.messages.submitted[0].EncryptedContent, "hello")
}

func TestSendText_SubmitFailureLeavesOneFailedRecord(t *testing.T) {
	h := newHarness(t, "alice")
	h.messages.failNext = errRelayDown

	msg, err := h.coord.SendText(context.Background(), domain.Target{UserID: "bob"}, "hello")
	require.ErrorIs(t, err, errRelayDown)
	require.Equal(t, domain.StatusFailed, msg.Status)

	hist := h.coord.History()
	require.Len(t, hist, 1)
	require.Equal(t, domain.StatusFailed, hist[0].Status)
	require.True(t, hist[0].ID.IsTemporary())

	retried, err := h.coord.Retry(context.Background(), hist[0].ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSent, retried.Status)

	hist = h.coord.History()
	require.Len(t, hist, 1)
	require.Equal(t, retried.ID, hist[0].ID)

	_, err = h.coord.Retry(context.Background(), retried.ID)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestFailedSend_SurvivesOpeningOtherConversations(t *testing.T) {
	h := newHarness(t, "alice")
	ctx := context.Background()
	h.messages.failNext = errRelayDown

	failed, err := h.coord.SendText(ctx, domain.Target{UserID: "bob"}, "hello")
	require.ErrorIs(t, err, errRelayDown)

	hist, err := h.coord.OpenConversation(ctx, domain.Conversation{UserID: "carol"})
	require.NoError(t, err)
	require.Empty(t, hist)
	require.Empty(t, h.coord.History())

	hist, err = h.coord.OpenConversation(ctx, domain.Conversation{UserID: "bob"})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, failed.ID, hist[0].ID)
	require.Equal(t, domain.StatusFailed, hist[0].Status)

	retried, err := h.coord.Retry(ctx, failed.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSent, retried.Status)

	hist = h.coord.History()
	require.Len(t, hist, 1)
	require.Equal(t, retried.ID, hist[0].ID)
}

func TestSend_OtherConversationStaysOutOfView(t *testing.T) {
	h := newHarness(t, "alice")
	ctx := context.Background()

	_, err := h.coord.OpenConversation(ctx, domain.Conversation{UserID: "carol"})
	require.NoError(t, err)
	sent, err := h.coord.SendText(ctx, domain.Target{UserID: "bob"}, "hi bob")
	require.NoError(t, err)
	require.Empty(t, h.coord.History())

	h.coord.ApplyReceipt(domain.Receipt{MessageID: sent.ID, UserID: "bob", Kind: domain.ReceiptDelivered})
	h.coord.CloseConversation()
	hist := h.coord.History()
	require.Len(t, hist, 1)
	require.Equal(t, domain.StatusDelivered, hist[0].Status)
}

func TestSend_ReusesPersistedSession(t *testing.T) {
	h := newHarness(t, "alice")
	ctx := context.Background()

	_, err := h.coord.SendText(ctx, domain.Target{UserID: "bob"}, "first")
	require.NoError(t, err)
	before, ok, err := h.sessions.Session(domain.SessionIDFor("bob", "devB"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.SessionActive, before.State)

	// A fresh coordinator over the same sessions, with nothing left in the
	// key directory, keeps the stored session.
	delete(h.keys.bundles, "bob")
	fresh := delivery.New(delivery.Config{
		Self:     "alice",
		Sessions: h.sessions,
		Messages: h.messages,
		Receipts: h.receipts,
		Keys:     h.keys,
	})
	_, err = fresh.SendText(ctx, domain.Target{UserID: "bob"}, "second")
	require.NoError(t, err)

	after, ok, err := h.sessions.Session(before.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.SessionActive, after.State)
	require.Equal(t, before.CreatedAt, after.CreatedAt)
}

func TestSendText_NoSessionFails(t *testing.T) {
	h := newHarness(t, "alice")

	msg, err := h.coord.SendText(context.Background(), domain.Target{UserID: "mallory"}, "hi")
	require.Error(t, err)
	require.Equal(t, domain.StatusFailed, msg.Status)
	require.Len(t, h.coord.History(), 1)
	require.Empty(t, h.messages.submitted)

	_, err = h.coord.SendText(context.Background(), domain.Target{}, "hi")
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = h.coord.SendText(context.Background(), domain.Target{UserID: "bob", GroupID: "g"}, "hi")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestSendFile_EncodesDescriptor(t *testing.T) {
	h := newHarness(t, "alice")

	fd := domain.FileDescriptor{Name: "a.png", Size: 10, MimeType: "image/png", URL: "https://files/a.png"}
	msg, err := h.coord.SendFile(context.Background(), domain.Target{UserID: "bob"}, fd)
	require.NoError(t, err)
	require.Equal(t, domain.MessageFile, msg.Type)

	env, err := h.coord.Plaintext(context.Background(), msg)
	require.NoError(t, err)
	var got domain.FileDescriptor
	require.NoError(t, json.Unmarshal([]byte(env.Content), &got))
	require.Equal(t, fd, got)

	_, err = h.coord.SendFile(context.Background(), domain.Target{UserID: "bob"}, domain.FileDescriptor{})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestGroupSend_EncodingAndAEAD(t *testing.T) {
	h := newHarness(t, "alice")
	msg, err := h.coord.SendText(context.Background(), domain.Target{GroupID: "g1"}, "hi all")
	require.NoError(t, err)
	env, err := h.coord.Plaintext(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, "hi all", env.Content)

	sealed := newHarness(t, "alice", session.WithCipher(session.ModeAEAD))
	_, err = sealed.coord.SendText(context.Background(), domain.Target{GroupID: "g1"}, "hi")
	require.ErrorIs(t, err, errs.ErrInvalidKeyMaterial)
}

func TestMarkRead_Idempotent(t *testing.T) {
	h := newHarness(t, "bob")
	h.messages.history = []domain.Message{
		{ID: "m1", SenderID: "alice", RecipientID: "bob", Status: domain.StatusDelivered},
		{ID: "m2", SenderID: "bob", RecipientID: "alice", Status: domain.StatusSent},
	}

	hist, err := h.coord.OpenConversation(context.Background(), domain.Conversation{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, domain.StatusRead, hist[0].Status)
	require.Equal(t, domain.StatusSent, hist[1].Status)

	h.coord.MarkRead(context.Background(), []domain.MessageID{"m1"})
	h.coord.MarkRead(context.Background(), []domain.MessageID{"m1"})
	h.coord.Wait()

	require.Equal(t, 1, h.receipts.count(domain.ReceiptRead))
}

func TestReceive_FiltersByOpenConversation(t *testing.T) {
	h := newHarness(t, "bob")
	ctx := context.Background()

	_, err := h.coord.OpenConversation(ctx, domain.Conversation{UserID: "alice"})
	require.NoError(t, err)

	fromCarol := domain.Message{ID: "c1", SenderID: "carol", RecipientID: "bob", Status: domain.StatusSent}
	fromAlice := domain.Message{ID: "a1", SenderID: "alice", RecipientID: "bob", Status: domain.StatusSent}

	require.NoError(t, h.coord.Receive(ctx, fromCarol))
	require.NoError(t, h.coord.Receive(ctx, fromAlice))
	require.NoError(t, h.coord.Receive(ctx, fromAlice))
	h.coord.Wait()

	hist := h.coord.History()
	require.Len(t, hist, 1)
	require.Equal(t, domain.MessageID("a1"), hist[0].ID)
	require.Equal(t, domain.StatusRead, hist[0].Status)

	require.Equal(t, 2, h.receipts.count(domain.ReceiptDelivered))
	require.Equal(t, 1, h.receipts.count(domain.ReceiptRead))

	h.coord.CloseConversation()
	require.NoError(t, h.coord.Receive(ctx, domain.Message{ID: "a2", SenderID: "alice", RecipientID: "bob"}))
	require.Len(t, h.coord.History(), 1)

	require.ErrorIs(t, h.coord.Receive(ctx, domain.Message{}), errs.ErrValidation)
}

func TestReceiptFailure_KeepsLocalRead(t *testing.T) {
	h := newHarness(t, "bob")
	h.receipts.err = errRelayDown
	ctx := context.Background()

	_, err := h.coord.OpenConversation(ctx, domain.Conversation{UserID: "alice"})
	require.NoError(t, err)
	require.NoError(t, h.coord.Receive(ctx, domain.Message{ID: "a1", SenderID: "alice", RecipientID: "bob"}))
	h.coord.Wait()

	h.coord.MarkRead(ctx, []domain.MessageID{"a1"})
	h.coord.Wait()

	hist := h.coord.History()
	require.Len(t, hist, 1)
	require.Equal(t, domain.StatusRead, hist[0].Status)
	require.Equal(t, 1, h.receipts.count(domain.ReceiptRead))
}

func TestApplyReceipt_ForwardOnly(t *testing.T) {
	h := newHarness(t, "alice")
	ctx := context.Background()

	msg, err := h.coord.SendText(ctx, domain.Target{UserID: "bob"}, "hello")
	require.NoError(t, err)

	events, cancel := h.coord.Subscribe()
	defer cancel()

	h.coord.ApplyReceipt(domain.Receipt{MessageID: msg.ID, UserID: "bob", Kind: domain.ReceiptRead})
	h.coord.ApplyReceipt(domain.Receipt{MessageID: msg.ID, UserID: "bob", Kind: domain.ReceiptDelivered})
	h.coord.ApplyReceipt(domain.Receipt{MessageID: msg.ID, UserID: "bob", Kind: domain.ReceiptRead})
	h.coord.ApplyReceipt(domain.Receipt{MessageID: "unknown", Kind: domain.ReceiptRead})

	require.Equal(t, domain.StatusRead, h.coord.History()[0].Status)
	require.Len(t, drain(events), 1)
}

func TestHandleFrame(t *testing.T) {
	h := newHarness(t, "alice")
	ctx := context.Background()

	msg, err := h.coord.SendText(ctx, domain.Target{UserID: "bob"}, "hello")
	require.NoError(t, err)

	f, err := domain.NewFrame(domain.FrameMessageReceipt, domain.Receipt{MessageID: msg.ID, UserID: "bob", Kind: domain.ReceiptDelivered, Timestamp: time.Now()})
	require.NoError(t, err)
	require.NoError(t, h.coord.HandleFrame(ctx, f))
	require.Equal(t, domain.StatusDelivered, h.coord.History()[0].Status)

	f, err = domain.NewFrame(domain.FrameNewMessage, domain.Message{ID: "b1", SenderID: "bob", RecipientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, h.coord.HandleFrame(ctx, f))
	h.coord.Wait()
	require.Equal(t, 1, h.receipts.count(domain.ReceiptDelivered))

	require.NoError(t, h.coord.HandleFrame(ctx, domain.Frame{Type: domain.FramePong}))
	require.Error(t, h.coord.HandleFrame(ctx, domain.Frame{Type: domain.FrameNewMessage, Payload: []byte("{")}))
}

func TestScenario_AliceToBob(t *testing.T) {
	ctx := context.Background()
	alice := newHarness(t, "alice")
	bob := newHarness(t, "bob")

	sent, err := alice.coord.SendText(ctx, domain.Target{UserID: "bob"}, "hello")
	require.NoError(t, err)

	// Bob holds no session yet and establishes one from Alice's bundle.
	env, err := bob.coord.Plaintext(ctx, sent)
	require.NoError(t, err)
	require.Equal(t, "hello", env.Content)
	require.Equal(t, domain.UserID("alice"), env.SenderID)

	sess, ok, err := bob.sessions.Session(domain.SessionIDFor("alice", "dev-alice"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.SessionActive, sess.State)
}

func TestVerify_PublishesErrors(t *testing.T) {
	h := newHarness(t, "alice")
	code, err := h.coord.Verify("bob", "devB")
	require.NoError(t, err)
	require.NotEmpty(t, code.SafetyNumber)

	require.True(t, errors.Is(func() error {
		_, err := h.coord.Retry(context.Background(), "temp-missing")
		return err
	}(), errs.ErrValidation))
}

func TestConnectionStatus_Published(t *testing.T) {
	h := newHarness(t, "alice")
	events, cancel := h.coord.Subscribe()
	h.coord.ConnectionStatus("connected")

	evs := drain(events)
	require.Len(t, evs, 1)
	require.Equal(t, delivery.EventConnection, evs[0].Kind)
	require.Equal(t, "connected", evs[0].Connection)

	cancel()
	cancel()
}
