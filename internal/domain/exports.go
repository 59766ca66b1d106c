package domain

import (
	interfaces "cipherchat/internal/domain/interfaces"
	types "cipherchat/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID           = types.UserID
	DeviceID         = types.DeviceID
	MessageID        = types.MessageID
	SessionID        = types.SessionID
	PrekeyID         = types.PrekeyID
	Fingerprint      = types.Fingerprint
	X25519Public     = types.X25519Public
	X25519Private    = types.X25519Private
	Ed25519Public    = types.Ed25519Public
	Ed25519Private   = types.Ed25519Private
	Identity         = types.Identity
	Prekey           = types.Prekey
	PrekeyBundle     = types.PrekeyBundle
	SessionState     = types.SessionState
	Session          = types.Session
	VerificationCode = types.VerificationCode
	MessageType      = types.MessageType
	Envelope         = types.Envelope
	MessageStatus    = types.MessageStatus
	Message          = types.Message
	ReceiptKind      = types.ReceiptKind
	Receipt          = types.Receipt
	Target           = types.Target
	Conversation     = types.Conversation
	FileDescriptor   = types.FileDescriptor
	Group            = types.Group
	Page             = types.Page
	Frame            = types.Frame
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	SecureStorage   = interfaces.SecureStorage
	IdentityStore   = interfaces.IdentityStore
	PrekeyStore     = interfaces.PrekeyStore
	SessionStore    = interfaces.SessionStore
	KeyStore        = interfaces.KeyStore
	SubmitRequest   = interfaces.SubmitRequest
	MessageStore    = interfaces.MessageStore
	ReceiptStore    = interfaces.ReceiptStore
	KeyDirectory    = interfaces.KeyDirectory
	IdentityService = interfaces.IdentityService
	PrekeyService   = interfaces.PrekeyService
	SessionManager  = interfaces.SessionManager
)

// Re-exported constants.
const (
	TempIDPrefix = types.TempIDPrefix

	SessionInitialized = types.SessionInitialized
	SessionActive      = types.SessionActive
	SessionExpired     = types.SessionExpired

	MessageText   = types.MessageText
	MessageFile   = types.MessageFile
	MessageSystem = types.MessageSystem

	StatusSending   = types.StatusSending
	StatusSent      = types.StatusSent
	StatusDelivered = types.StatusDelivered
	StatusRead      = types.StatusRead
	StatusFailed    = types.StatusFailed

	ReceiptDelivered = types.ReceiptDelivered
	ReceiptRead      = types.ReceiptRead

	FrameNewMessage      = types.FrameNewMessage
	FrameMessageReceipt  = types.FrameMessageReceipt
	FramePing            = types.FramePing
	FramePong            = types.FramePong
	FrameMessageReceived = types.FrameMessageReceived
)

// SessionIDFor derives the session id for a peer device.
func SessionIDFor(peer UserID, device DeviceID) SessionID { return types.SessionIDFor(peer, device) }

// NewFrame marshals payload into a Frame of the given type.
func NewFrame(typ string, payload any) (Frame, error) { return types.NewFrame(typ, payload) }
