package secrets

import (
	"strings"
	"testing"
	"time"

	"github.com/splamy/myousync/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHashAndVerifyPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, pbkdf2Prefix+"$") {
		t.Fatalf("hash missing self-describing prefix: %q", hash)
	}
	if !VerifyPassword("correct horse battery staple", hash) {
		t.Errorf("expected correct password to verify")
	}
	if VerifyPassword("wrong password", hash) {
		t.Errorf("expected wrong password to fail verification")
	}
}

func TestHashPasswordUsesDistinctSalts(t *testing.T) {
	h1, _ := HashPassword("same-password")
	h2, _ := HashPassword("same-password")
	if h1 == h2 {
		t.Errorf("expected distinct salts to produce distinct hashes")
	}
}

func TestVerifyPasswordRejectsMalformedStored(t *testing.T) {
	if VerifyPassword("anything", "not-a-valid-hash") {
		t.Errorf("expected malformed stored hash to fail verification")
	}
}

func TestSignerMintAndValidateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	signer, err := NewSigner(s)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	token, err := signer.Mint("alice")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := signer.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.User != "alice" {
		t.Errorf("user = %q, want alice", claims.User)
	}
	if claims.Expiry-claims.IssuedAt != int64(tokenTTL.Seconds()) {
		t.Errorf("exp-iat = %d, want %d", claims.Expiry-claims.IssuedAt, int64(tokenTTL.Seconds()))
	}
}

func TestSignerPersistsSecretAcrossInstances(t *testing.T) {
	s := openTestStore(t)

	signer1, err := NewSigner(s)
	if err != nil {
		t.Fatalf("new signer 1: %v", err)
	}
	token, err := signer1.Mint("bob")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	signer2, err := NewSigner(s)
	if err != nil {
		t.Fatalf("new signer 2: %v", err)
	}
	if _, err := signer2.Validate(token); err != nil {
		t.Fatalf("expected token minted by signer1 to validate under signer2's reloaded secret: %v", err)
	}
}

func TestValidateRejectsTamperedSignature(t *testing.T) {
	s := openTestStore(t)
	signer, _ := NewSigner(s)
	token, _ := signer.Mint("carol")

	tampered := token[:len(token)-1] + "x"
	if _, err := signer.Validate(tampered); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	s := openTestStore(t)
	signer, _ := NewSigner(s)

	claims := Claims{IssuedAt: time.Now().Add(-48 * time.Hour).Unix(), Expiry: time.Now().Add(-24 * time.Hour).Unix(), User: "dave"}
	token, err := signer.sign(claims)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := signer.Validate(token); err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}
