package signer

import (
	"bytes"
	"testing"
)

func newTestSigner(t *testing.T) *JWTSigner {
	t.Helper()
	store, err := OpenNonceStore(":memory:")
	if err != nil {
		t.Fatalf("OpenNonceStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewJWTSigner([]byte("test-signing-key"), store)
}

func TestSignedDemoCycle(t *testing.T) {
	s := newTestSigner(t)

	nonce, sig, err := s.SignStart()
	if err != nil {
		t.Fatalf("SignStart: %v", err)
	}
	if len(nonce) != nonceSize {
		t.Fatalf("got nonce length %d, want %d", len(nonce), nonceSize)
	}
	startMessage := append(append([]byte{}, nonce...), sig...)

	var hash [20]byte
	copy(hash[:], bytes.Repeat([]byte{0xCD}, 20))

	endSig, ok := s.SignEnd(startMessage, hash)
	if !ok {
		t.Fatal("expected SignEnd to succeed on first use")
	}
	if len(endSig) == 0 {
		t.Fatal("expected non-empty end signature")
	}
}

func TestSignEndRejectsReplay(t *testing.T) {
	s := newTestSigner(t)

	nonce, sig, err := s.SignStart()
	if err != nil {
		t.Fatalf("SignStart: %v", err)
	}
	startMessage := append(append([]byte{}, nonce...), sig...)
	var hash [20]byte

	if _, ok := s.SignEnd(startMessage, hash); !ok {
		t.Fatal("expected first SignEnd to succeed")
	}
	if _, ok := s.SignEnd(startMessage, hash); ok {
		t.Fatal("expected replayed SignEnd to fail once the nonce is consumed")
	}
}

func TestSignEndRejectsTamperedToken(t *testing.T) {
	s := newTestSigner(t)

	nonce, sig, err := s.SignStart()
	if err != nil {
		t.Fatalf("SignStart: %v", err)
	}
	tampered := append([]byte{}, sig...)
	tampered[len(tampered)-1] ^= 0xFF
	startMessage := append(append([]byte{}, nonce...), tampered...)

	var hash [20]byte
	if _, ok := s.SignEnd(startMessage, hash); ok {
		t.Fatal("expected tampered token to fail verification")
	}
}

func TestSignEndRejectsUnknownNonce(t *testing.T) {
	s1 := newTestSigner(t)
	s2 := newTestSigner(t)

	nonce, sig, err := s1.SignStart()
	if err != nil {
		t.Fatalf("SignStart: %v", err)
	}
	startMessage := append(append([]byte{}, nonce...), sig...)

	var hash [20]byte
	if _, ok := s2.SignEnd(startMessage, hash); ok {
		t.Fatal("expected SignEnd to fail for a nonce only another signer's store holds")
	}
}

func TestHexEncode(t *testing.T) {
	s := newTestSigner(t)
	if got := s.HexEncode([]byte{0xDE, 0xAD}); got != "dead" {
		t.Fatalf("got %q, want %q", got, "dead")
	}
}
