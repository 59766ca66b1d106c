// Package hub is the relay's in-process registry of live websocket
// connections.
//
// A Hub maps each user id to the set of that user's connections and routes
// notifications to them. Register, Unregister and Broadcast are serialised
// through Run; SendToUser fans out under the index read lock. Every
// connection owns a bounded outbound queue, and a connection whose queue is
// full is dropped instead of stalling delivery to anyone else.
package hub
