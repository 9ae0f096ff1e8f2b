/*
File Name:  identity.go

Session key generation (spec §3 "Session key", §4.3). Mirrors the
teacher's Peer ID.go generate-or-mint-fresh-key shape (initPeerID
there loads a persisted secp256k1 key or mints a fresh one), minus the
persistence half: spec §3 states all three of a node's own keypairs
are ephemeral, generated at session start and cleared at stop (spec §1
"no forward secrecy rotation ... keys are per-session ephemeral").
*/

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/curve25519"
)

const PublicKeySize = 32

// Identity holds one node's own keys for a running session.
type Identity struct {
	X25519Priv [PublicKeySize]byte
	X25519Pub  [PublicKeySize]byte

	SigningPriv ed25519.PrivateKey
	SigningPub  ed25519.PublicKey

	IdentityPriv ed25519.PrivateKey
	IdentityPub  ed25519.PublicKey
}

// NewIdentity generates a fresh X25519 pair and fresh Ed25519 signing
// and identity pairs. Called at session start; the caller wipes it at
// stop (spec §5 "the session key is wiped").
func NewIdentity() (*Identity, error) {
	id := &Identity{}

	if _, err := rand.Read(id.X25519Priv[:]); err != nil {
		return nil, err
	}
	curve25519.ScalarBaseMult(&id.X25519Pub, &id.X25519Priv)

	var err error
	id.SigningPub, id.SigningPriv, err = ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	id.IdentityPub, id.IdentityPriv, err = ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	return id, nil
}

// CombinedPublic returns the 96-byte concatenation
// X25519Pub || SigningPub || IdentityPub advertised to peers (spec §3).
func (id *Identity) CombinedPublic() []byte {
	out := make([]byte, 0, PublicKeySize*3)
	out = append(out, id.X25519Pub[:]...)
	out = append(out, id.SigningPub...)
	out = append(out, id.IdentityPub...)
	return out
}

// Wipe zeroes the session's private key material.
func (id *Identity) Wipe() {
	for i := range id.X25519Priv {
		id.X25519Priv[i] = 0
	}
	for i := range id.SigningPriv {
		id.SigningPriv[i] = 0
	}
	for i := range id.IdentityPriv {
		id.IdentityPriv[i] = 0
	}
}

// Sign signs bytes with the session's Ed25519 signing key (spec §4.3).
func (id *Identity) Sign(data []byte) [64]byte {
	var sig [64]byte
	copy(sig[:], ed25519.Sign(id.SigningPriv, data))
	return sig
}

// ErrInvalidPublicKey is returned when a peer-supplied combined public
// key does not have the expected 96-byte length.
var ErrInvalidPublicKey = errors.New("crypto: invalid combined public key length")

// SplitCombinedPublic slices a 96-byte combined public key into its
// three 32-byte subkeys (spec §4.3 add_peer_key).
func SplitCombinedPublic(combined []byte) (x25519Pub, signingPub, identityPub [PublicKeySize]byte, err error) {
	if len(combined) != PublicKeySize*3 {
		err = ErrInvalidPublicKey
		return
	}
	copy(x25519Pub[:], combined[0:32])
	copy(signingPub[:], combined[32:64])
	copy(identityPub[:], combined[64:96])
	return
}
