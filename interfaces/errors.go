// Package interfaces defines the shared error kinds and collaborator
// contracts used across the launch-session and attestation packages.
// It provides the contract between components without implementation
// details.
package interfaces

import "errors"

// The four failure kinds of the protocol. Every error returned by the
// session, report and certs packages wraps one of these, so callers can
// classify failures with errors.Is and decide whether to restart the
// handshake.
var (
	// ErrEntropy indicates the entropy source was unavailable or
	// exhausted. The in-progress operation produced no partial state.
	ErrEntropy = errors.New("entropy source unavailable")

	// ErrCrypto indicates an underlying cipher, MAC, or signature
	// primitive rejected its inputs. Fatal to the session.
	ErrCrypto = errors.New("crypto primitive rejected input")

	// ErrVerification indicates a computed measurement or signature did
	// not match the expected value. The launch attempt or report is
	// rejected outright; there is no degraded acceptance.
	ErrVerification = errors.New("verification failed")

	// ErrTrust indicates supplied certificate material failed its own
	// validation before any key derived from it could be used.
	ErrTrust = errors.New("certificate material not trusted")
)
