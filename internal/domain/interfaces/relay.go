package interfaces

import (
	"context"

	domaintypes "cipherchat/internal/domain/types"
)

// SubmitRequest is the encrypted payload handed to the message store.
type SubmitRequest struct {
	RecipientID      domaintypes.UserID      `json:"recipient_id,omitempty"`
	GroupID          string                  `json:"group_id,omitempty"`
	SenderDeviceID   domaintypes.DeviceID    `json:"sender_device_id,omitempty"`
	EncryptedContent string                  `json:"encrypted_content"`
	MessageType      domaintypes.MessageType `json:"message_type"`
}

// MessageStore persists messages and serves history.
type MessageStore interface {
	SubmitMessage(ctx context.Context, req SubmitRequest) (domaintypes.Message, error)
	FetchMessages(
		ctx context.Context,
		conv domaintypes.Conversation,
		page domaintypes.Page,
	) ([]domaintypes.Message, error)
}

// ReceiptStore accepts delivery and read receipts.
type ReceiptStore interface {
	SubmitReceipt(ctx context.Context, id domaintypes.MessageID, kind domaintypes.ReceiptKind) error
}

// KeyDirectory publishes our bundle and serves peers' bundles.
type KeyDirectory interface {
	PublishBundle(ctx context.Context, bundle domaintypes.PrekeyBundle) error
	FetchBundle(ctx context.Context, user domaintypes.UserID) (domaintypes.PrekeyBundle, error)
}
