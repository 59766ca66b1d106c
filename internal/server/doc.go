// Package server implements the relay HTTP API: message and receipt stores,
// the public key directory, groups and the realtime websocket endpoint.
//
// Every route except /health requires an HS256 bearer token whose subject
// is the caller's user id.
package server
