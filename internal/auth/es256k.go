package auth

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/golang-jwt/jwt/v5"
)

const algES256K = "ES256K"

// SigningMethodES256K signs tokens with ECDSA over secp256k1 and SHA-256,
// encoding the signature as the 64 byte concatenation of R and S.
var SigningMethodES256K = &signingMethodES256K{}

type signingMethodES256K struct{}

func init() {
	jwt.RegisterSigningMethod(algES256K, func() jwt.SigningMethod {
		return SigningMethodES256K
	})
}

func (m *signingMethodES256K) Alg() string {
	return algES256K
}

func (m *signingMethodES256K) Sign(signingString string, key any) ([]byte, error) {
	priv, ok := key.(*secp256k1.PrivateKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	hash := sha256.Sum256([]byte(signingString))
	sig := secpecdsa.Sign(priv, hash[:])
	r, s := sig.R(), sig.S()
	rb, sb := r.Bytes(), s.Bytes()
	out := make([]byte, 0, 64)
	out = append(out, rb[:]...)
	return append(out, sb[:]...), nil
}

func (m *signingMethodES256K) Verify(signingString string, sig []byte, key any) error {
	pub, ok := key.(*secp256k1.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if len(sig) != 64 {
		return jwt.ErrSignatureInvalid
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	hash := sha256.Sum256([]byte(signingString))
	if !ecdsa.Verify(pub.ToECDSA(), hash[:], r, s) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}

// ParseSecp256k1Key decodes a hex private key, with or without 0x prefix.
func ParseSecp256k1Key(input string) (*secp256k1.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(input), "0x"))
	if err != nil {
		return nil, err
	}
	if len(raw) != secp256k1.PrivKeyBytesLen {
		return nil, errors.New("secp256k1 private key must be 32 bytes")
	}
	return secp256k1.PrivKeyFromBytes(raw), nil
}
