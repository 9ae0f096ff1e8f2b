/*
File Name:  sign.go

Ed25519 sign/verify. Verify never panics or errors on a missing peer
key -- it simply returns false, per spec §4.3 ("absent key ⇒ false (do
not crash)") -- since an unverifiable signature must be a silent drop,
never a caller-visible error (spec §7).
*/

package crypto

import "crypto/ed25519"

// Verify checks sig over data against peerID's recorded signing key.
// Returns false if the peer has no recorded signing key at all.
func (ks *KeyStore) Verify(peerID string, data []byte, sig [64]byte) bool {
	pk, ok := ks.Get(peerID)
	if !ok {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pk.SigningPub[:]), data, sig[:])
}
