// Package signer implements the demo-sealing collaborator spec.md §6
// describes as external: a nonce+signature issuer for "demo start" and a
// signature binding a start message to a demo hash for "demo end".
package signer

import "errors"

// ErrDisabled names the signing-disabled condition. The engine does not
// return it: with a nil Signer it silently drops SIGN_START/SIGN_END.
var ErrDisabled = errors.New("signer: disabled")

// Signer is the contract spec.md §6 assigns to the cryptographic signer.
// Its internals are out of scope for the core; JWTSigner is this repo's
// concrete default adapter.
type Signer interface {
	// SignStart returns a fresh nonce and an opaque signature. The wire
	// payload sent to the client is nonce immediately followed by
	// signature.
	SignStart() (nonce []byte, signature []byte, err error)

	// SignEnd verifies the signature embedded in startMessage (the exact
	// bytes a SIGN_START_RESPONSE carried) and, on success, returns an
	// opaque signature binding startMessage to hash. ok is false on any
	// verification failure, including replay of an already-consumed
	// nonce.
	SignEnd(startMessage []byte, hash [20]byte) (signature []byte, ok bool)

	// HexEncode renders b as lowercase hex, for log lines.
	HexEncode(b []byte) string
}
