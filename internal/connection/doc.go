// Package connection keeps one self-healing realtime connection from a client
// to the relay hub.
//
// A Manager dials the hub with the bearer token in the handshake URL, sends
// heartbeat pings while connected, and after an abnormal closure reconnects
// with capped exponential backoff until a configured number of consecutive
// failures, at which point it reports an error and stops. Heartbeat replies
// never reach the message handler.
package connection
