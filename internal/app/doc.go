// Package app wires the client's dependencies.
//
// NewWire opens secure local storage and builds the session manager, the
// relay client, the delivery coordinator and the connection manager from
// Config. Commands use the resulting Wire and Close it when done.
package app
