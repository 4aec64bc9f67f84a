package signer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const nonceSize = 16

// startClaims is embedded in the opaque token half of a SIGN_START_RESPONSE.
type startClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// endClaims is embedded in a SIGN_END_RESPONSE, binding the original nonce
// to the demo hash.
type endClaims struct {
	Nonce string `json:"nonce"`
	Hash  string `json:"hash"`
	jwt.RegisteredClaims
}

// JWTSigner is the default Signer, built on HMAC-SHA256 JWTs and a
// SQLite-backed nonce ledger for replay rejection.
type JWTSigner struct {
	key    []byte
	nonces *NonceStore
}

// NewJWTSigner constructs a signer using key for HMAC signing and store
// for outstanding-nonce bookkeeping.
func NewJWTSigner(key []byte, store *NonceStore) *JWTSigner {
	return &JWTSigner{key: key, nonces: store}
}

func (s *JWTSigner) SignStart() ([]byte, []byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("signer: generating nonce: %w", err)
	}
	nonceHex := hex.EncodeToString(nonce)

	claims := startClaims{
		Nonce: nonceHex,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return nil, nil, fmt.Errorf("signer: signing start token: %w", err)
	}

	if err := s.nonces.Put(nonceHex, time.Now()); err != nil {
		return nil, nil, err
	}

	return nonce, []byte(signed), nil
}

func (s *JWTSigner) SignEnd(startMessage []byte, hash [20]byte) ([]byte, bool) {
	if len(startMessage) <= nonceSize {
		return nil, false
	}
	nonce := startMessage[:nonceSize]
	tokenString := string(startMessage[nonceSize:])
	nonceHex := hex.EncodeToString(nonce)

	claims := &startClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, false
	}
	if claims.Nonce != nonceHex {
		return nil, false
	}

	consumed, err := s.nonces.Consume(nonceHex)
	if err != nil || !consumed {
		return nil, false
	}

	endClaims := endClaims{
		Nonce: nonceHex,
		Hash:  hex.EncodeToString(hash[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	endToken := jwt.NewWithClaims(jwt.SigningMethodHS256, endClaims)
	signed, err := endToken.SignedString(s.key)
	if err != nil {
		return nil, false
	}
	return []byte(signed), true
}

func (s *JWTSigner) HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}
