// Package delivery is the Message Delivery Coordinator.
//
// It drives the user-visible lifecycle of messages: optimistic sends under
// temporary ids reconciled with the relay's records, inbound notifications
// filtered by the open conversation, and delivered/read receipts emitted at
// most once per message. Upper layers observe progress through Subscribe.
package delivery
