/*
File Name:  aead.go

AES-256-GCM authenticated encryption under the peer's derived
symmetric key (spec §4.3). Stdlib crypto/aes+crypto/cipher: no
third-party AEAD in the example pack improves on the standard
library's constant-time GCM implementation, so this is the one leaf
in the crypto package that is intentionally stdlib-only.
*/

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
)

const nonceSize = 12 // 96-bit, per spec §4.3

// ErrDecryptionFailed covers tag mismatch, wrong nonce length, and
// missing key -- spec §4.3 requires all three to collapse to one
// opaque error so a hostile peer cannot distinguish failure modes.
var ErrDecryptionFailed = errors.New("crypto: decryption failed")

// Encrypt seals plaintext under peerID's derived symmetric key with a
// fresh random 96-bit nonce, returning nonce||ciphertext||tag.
func (ks *KeyStore) Encrypt(peerID string, plaintext []byte) ([]byte, error) {
	pk, ok := ks.Get(peerID)
	if !ok || !pk.HasSymmetric {
		return nil, ErrNoSharedSecret
	}

	block, err := aes.NewCipher(pk.SymmetricKey[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

// Decrypt reverses Encrypt. Any failure -- wrong nonce length, no
// shared secret, tag mismatch -- returns the single opaque
// ErrDecryptionFailed (spec §7: inbound crypto failures are swallowed,
// never surfaced with detail to a caller).
func (ks *KeyStore) Decrypt(peerID string, data []byte) ([]byte, error) {
	pk, ok := ks.Get(peerID)
	if !ok || !pk.HasSymmetric {
		return nil, ErrDecryptionFailed
	}
	if len(data) < nonceSize {
		return nil, ErrDecryptionFailed
	}

	block, err := aes.NewCipher(pk.SymmetricKey[:])
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
