// Package main runs the cipherchat relay. The relay stores ciphertext,
// receipts, public key bundles and groups, and pushes notifications to
// connected clients over websockets. It never sees plaintext or private keys.
//
// Commands
//
//	relay serve      Run the HTTP API (default :8080)
//	relay migrate    Apply database migrations (up | status)
//	relay token      Print a bearer token for a user
//
// HTTP API (bearer token required except /health)
//
//	POST /v1/messages          Persist a message and notify the recipient or group
//	GET  /v1/messages          History of ?peer= or ?group=, with since and limit
//	POST /v1/receipts          Record a delivered or read receipt, notify the sender
//	POST /v1/keys              Publish a bundle (one one-time prekey per call)
//	GET  /v1/keys/{userID}     Claim a bundle, consuming one prekey
//	POST /v1/groups            Create a group
//	GET  /v1/groups/{groupID}  Show a group to a member
//	GET  /v1/ws                Realtime notifications (token may be a query parameter)
//	GET  /health               Liveness
//
// Behaviour
//
//   - With DATABASE_URL set, state lives in PostgreSQL and migrations run on
//     start unless disabled; otherwise it is held in memory.
//   - Configuration comes from --config (TOML), .env, the environment and
//     flags, in increasing precedence.
//   - CORS allows the origins in allowed_origins (ALLOWED_ORIGINS), any by default.
//   - An access log records method, path, status, bytes, duration and remote
//     address for each request.
package main
