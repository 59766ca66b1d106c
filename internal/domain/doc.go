// Package domain re-exports the cipherchat data model (package types) and the
// contracts between client components (package interfaces) under one import.
package domain
