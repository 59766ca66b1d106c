// Package commands defines the cipherchat CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init             Create the local identity if missing
//   - fingerprint      Print the identity fingerprint
//   - prekeys publish  Generate prekeys and upload their bundles to the relay
//   - verify           Show or confirm the safety number of a peer device
//   - send             Encrypt and send a text message
//   - send-file        Send a file reference
//   - listen           Stay connected and print messages and status changes
//   - group create     Create a group on the relay
//   - logout           Wipe local key material and sessions
//
// Every flag falls back to a CIPHERCHAT_* environment variable,
// e.g. --passphrase reads CIPHERCHAT_PASSPHRASE when not given.
//
// # Implementation
//
// The root command opens secure storage and builds the dependency graph
// (session manager, relay client, delivery coordinator, connection manager)
// before any subcommand runs and closes it afterwards.
package commands
