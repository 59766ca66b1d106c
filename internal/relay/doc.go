// Package relay is the HTTP client for the relay's REST API.
//
// Client implements the message store, receipt store and key directory
// contracts used by the delivery coordinator. Every request carries the
// bearer token and a context for cancellation. Error responses are mapped
// onto the errs sentinels (401 and 403 ErrUnauthorized, 404 ErrNotFound, 409
// ErrAlreadyExists, 400 ErrValidation) with the server's message attached.
package relay
