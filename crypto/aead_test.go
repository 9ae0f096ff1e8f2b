package crypto

import "testing"

// TestEncryptDecryptRoundTrip checks a message encrypted under one
// side's derived key decrypts correctly under the peer's matching key
// (spec §4.3).
func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice, bob := twoIdentities(t)
	aliceKS := NewKeyStore(alice)
	bobKS := NewKeyStore(bob)

	if _, err := aliceKS.AddPeerKey("bob", bob.CombinedPublic()); err != nil {
		t.Fatalf("`AddPeerKey`: %v", err)
	}
	if _, err := bobKS.AddPeerKey("alice", alice.CombinedPublic()); err != nil {
		t.Fatalf("`AddPeerKey`: %v", err)
	}

	plaintext := []byte("this message is private")
	ciphertext, err := aliceKS.Encrypt("bob", plaintext)
	if err != nil {
		t.Fatalf("`Encrypt`: %v", err)
	}

	got, err := bobKS.Decrypt("alice", ciphertext)
	if err != nil {
		t.Fatalf("`Decrypt`: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("decrypted plaintext = %q, want %q", got, plaintext)
	}
}

// TestEncryptProducesDistinctCiphertexts checks the random nonce means
// encrypting the same plaintext twice never produces identical wire bytes.
func TestEncryptProducesDistinctCiphertexts(t *testing.T) {
	alice, bob := twoIdentities(t)
	aliceKS := NewKeyStore(alice)
	if _, err := aliceKS.AddPeerKey("bob", bob.CombinedPublic()); err != nil {
		t.Fatalf("`AddPeerKey`: %v", err)
	}

	plaintext := []byte("same message twice")
	a, err := aliceKS.Encrypt("bob", plaintext)
	if err != nil {
		t.Fatalf("`Encrypt`: %v", err)
	}
	b, err := aliceKS.Encrypt("bob", plaintext)
	if err != nil {
		t.Fatalf("`Encrypt`: %v", err)
	}
	if string(a) == string(b) {
		t.Fatalf("two encryptions of the same plaintext produced identical ciphertext")
	}
}

// TestDecryptWithoutSessionFails checks Decrypt collapses to the
// opaque ErrDecryptionFailed when no handshake has completed.
func TestDecryptWithoutSessionFails(t *testing.T) {
	alice, _ := twoIdentities(t)
	aliceKS := NewKeyStore(alice)

	if _, err := aliceKS.Decrypt("stranger", []byte("0123456789012345678")); err != ErrDecryptionFailed {
		t.Fatalf("got err %v, want ErrDecryptionFailed", err)
	}
}

// TestDecryptTamperedCiphertextFails checks a flipped ciphertext byte
// fails GCM tag verification and returns the opaque error, never a
// panic or a partially-decrypted result.
func TestDecryptTamperedCiphertextFails(t *testing.T) {
	alice, bob := twoIdentities(t)
	aliceKS := NewKeyStore(alice)
	bobKS := NewKeyStore(bob)
	if _, err := aliceKS.AddPeerKey("bob", bob.CombinedPublic()); err != nil {
		t.Fatalf("`AddPeerKey`: %v", err)
	}
	if _, err := bobKS.AddPeerKey("alice", alice.CombinedPublic()); err != nil {
		t.Fatalf("`AddPeerKey`: %v", err)
	}

	ciphertext, err := aliceKS.Encrypt("bob", []byte("integrity matters"))
	if err != nil {
		t.Fatalf("`Encrypt`: %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0xFF

	if _, err := bobKS.Decrypt("alice", ciphertext); err != ErrDecryptionFailed {
		t.Fatalf("got err %v, want ErrDecryptionFailed", err)
	}
}
