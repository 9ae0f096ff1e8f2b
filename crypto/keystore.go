/*
File Name:  keystore.go

Per-peer key/session store (spec §3 "Key/session store", §4.3
add_peer_key). Grounded on the teacher's Peer ID.go peerList: a
mutex-guarded map keyed by peer id, generalized from a single
secp256k1 public key to the three X25519/Ed25519-signing/identity
public keys plus the HKDF-derived symmetric key.
*/

package crypto

import (
	"errors"
	"sync"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"crypto/sha256"
)

// hkdfSalt is the fixed salt for session-key derivation (spec
// Glossary "Session key").
var hkdfSalt = []byte("bitchat-v1")

const SymmetricKeySize = 32

// PeerKeys holds one peer's public keys and, once the handshake has
// completed, the derived symmetric key.
type PeerKeys struct {
	X25519Pub    [PublicKeySize]byte
	SigningPub   [PublicKeySize]byte
	IdentityPub  [PublicKeySize]byte
	SymmetricKey [SymmetricKeySize]byte
	HasSymmetric bool
}

// KeyStore tracks PeerKeys per peer id, serialized through a mutex
// the same way the teacher's peerlistMutex guards peerList.
type KeyStore struct {
	self *Identity

	mu   sync.RWMutex
	keys map[string]*PeerKeys
}

// NewKeyStore creates a key store bound to the node's own session
// identity (needed to compute shared secrets on AddPeerKey).
func NewKeyStore(self *Identity) *KeyStore {
	return &KeyStore{self: self, keys: make(map[string]*PeerKeys)}
}

// ErrNoSharedSecret is returned by Encrypt/Decrypt when no handshake
// has completed with the given peer (spec §4.3).
var ErrNoSharedSecret = errors.New("crypto: no shared secret with peer")

// AddPeerKey slices a 96-byte combined public key into its three
// subkeys, computes the raw X25519 shared secret with our own
// ephemeral private key, and derives the 32-byte symmetric key via
// HKDF-SHA256(salt="bitchat-v1", info=""). Re-running this for a peer
// that already has a symmetric key does NOT rotate it (spec §8
// property 10, "handshake idempotence") -- the caller should check
// HasSymmetric first; AddPeerKey itself is idempotent-safe since it
// always recomputes the same deterministic output for the same inputs,
// but the node layer skips re-sending a KEY_EXCHANGE once handshaken.
func (ks *KeyStore) AddPeerKey(peerID string, combined []byte) (*PeerKeys, error) {
	x25519Pub, signingPub, identityPub, err := SplitCombinedPublic(combined)
	if err != nil {
		return nil, err
	}

	sharedSlice, err := curve25519.X25519(ks.self.X25519Priv[:], x25519Pub[:])
	if err != nil {
		return nil, err
	}

	symmetric, err := deriveSymmetricKey(sharedSlice)
	if err != nil {
		return nil, err
	}

	pk := &PeerKeys{
		X25519Pub:    x25519Pub,
		SigningPub:   signingPub,
		IdentityPub:  identityPub,
		SymmetricKey: symmetric,
		HasSymmetric: true,
	}

	ks.mu.Lock()
	ks.keys[peerID] = pk
	ks.mu.Unlock()

	return pk, nil
}

func deriveSymmetricKey(sharedSecret []byte) (key [SymmetricKeySize]byte, err error) {
	reader := hkdf.New(sha256.New, sharedSecret, hkdfSalt, nil)
	if _, err = reader.Read(key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// Get returns the stored keys for a peer, if any.
func (ks *KeyStore) Get(peerID string) (*PeerKeys, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	pk, ok := ks.keys[peerID]
	return pk, ok
}

// HasSession reports whether a symmetric key has been established
// with the peer.
func (ks *KeyStore) HasSession(peerID string) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	pk, ok := ks.keys[peerID]
	return ok && pk.HasSymmetric
}

// Remove drops a peer's key material, e.g. on eviction.
func (ks *KeyStore) Remove(peerID string) {
	ks.mu.Lock()
	delete(ks.keys, peerID)
	ks.mu.Unlock()
}

// Count returns the number of peers with recorded key material.
func (ks *KeyStore) Count() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys)
}
