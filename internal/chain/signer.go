package chain

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/roach88/sourcechain/internal/ir"
)

// Signer produces and checks header signatures over entry addresses.
type Signer interface {
	Sign(entryAddress ir.Address) (string, error)
	Verify(entryAddress ir.Address, signature string) bool
}

// Ed25519Signer signs entry addresses with an Ed25519 key. Signatures are
// lowercase hex.
type Ed25519Signer struct {
	key ed25519.PrivateKey
}

// NewEd25519Signer wraps an existing private key.
func NewEd25519Signer(key ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{key: key}
}

// NewEd25519SignerFromSeed derives a signer from a hex-encoded 32-byte seed.
func NewEd25519SignerFromSeed(seedHex string) (*Ed25519Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("signer seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer seed: want %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return NewEd25519Signer(ed25519.NewKeyFromSeed(seed)), nil
}

// GenerateEd25519Signer creates a signer with a fresh random key.
func GenerateEd25519Signer() (*Ed25519Signer, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signer: %w", err)
	}
	return NewEd25519Signer(key), nil
}

// PublicKey returns the verification key.
func (s *Ed25519Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

func (s *Ed25519Signer) Sign(entryAddress ir.Address) (string, error) {
	return hex.EncodeToString(ed25519.Sign(s.key, []byte(entryAddress))), nil
}

func (s *Ed25519Signer) Verify(entryAddress ir.Address, signature string) bool {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(s.PublicKey(), []byte(entryAddress), sig)
}
