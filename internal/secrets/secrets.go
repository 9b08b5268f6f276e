// Package secrets implements password hashing and session token minting:
// PBKDF2-hashed passwords stored as a self-describing string, and
// HS256-signed session tokens over an {iat, exp, user} claim set with a
// process-wide signing secret persisted in the store.
//
// The HS256 token shape and the pattern of hand-rolling it rather than
// pulling in a JWT library are grounded on denpa-radio's
// internal/auth/auth.go.
package secrets

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/splamy/myousync/internal/store"
)

const (
	pbkdf2SaltLen  = 16
	pbkdf2Rounds   = 1000
	pbkdf2KeyLen   = 32
	pbkdf2Prefix   = "pbkdf2-sha256"
	serverSecretKV = "auth_server_secret"
	serverSecretLen = 16
	tokenTTL       = 24 * time.Hour
)

// HashPassword derives a PBKDF2-SHA256 key from password with a fresh
// random salt and returns a self-describing string of the form
// "pbkdf2-sha256$rounds$salt$hash", salt and hash base64url-encoded.
func HashPassword(password string) (string, error) {
	salt := make([]byte, pbkdf2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Rounds, pbkdf2KeyLen, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s",
		pbkdf2Prefix,
		pbkdf2Rounds,
		base64.RawURLEncoding.EncodeToString(salt),
		base64.RawURLEncoding.EncodeToString(derived),
	), nil
}

// VerifyPassword reports whether password matches stored, a string
// previously produced by HashPassword. Comparison is constant-time.
func VerifyPassword(password, stored string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 || parts[0] != pbkdf2Prefix {
		return false
	}

	rounds, err := strconv.Atoi(parts[1])
	if err != nil || rounds <= 0 {
		return false
	}

	salt, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}

	want, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return false
	}

	got := pbkdf2.Key([]byte(password), salt, rounds, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// Claims is the session token payload.
type Claims struct {
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
	User     string `json:"user"`
}

var (
	// ErrInvalidToken covers any malformed, mis-signed, or unparsable token.
	ErrInvalidToken = errors.New("secrets: invalid session token")
	// ErrExpiredToken is returned when a token's exp claim has passed.
	ErrExpiredToken = errors.New("secrets: session token has expired")
)

type jwsHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// Signer mints and validates session tokens using a signing secret
// persisted under the KVP key auth_server_secret, generated once on first
// use if absent.
type Signer struct {
	secret []byte
}

// NewSigner loads (or generates and persists) the process-wide signing
// secret from s.
func NewSigner(s *store.Store) (*Signer, error) {
	secret, ok := s.GetKey(serverSecretKV)
	if !ok {
		secret = randomAlphanumeric(serverSecretLen)
		if err := s.SetKey(serverSecretKV, secret); err != nil {
			return nil, fmt.Errorf("persist signing secret: %w", err)
		}
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Mint produces a signed session token for user, expiring in 24h.
func (sg *Signer) Mint(user string) (string, error) {
	now := time.Now()
	claims := Claims{IssuedAt: now.Unix(), Expiry: now.Add(tokenTTL).Unix(), User: user}
	return sg.sign(claims)
}

func (sg *Signer) sign(claims Claims) (string, error) {
	headerJSON, err := json.Marshal(jwsHeader{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	headerB64 := base64.RawURLEncoding.EncodeToString(headerJSON)
	claimsB64 := base64.RawURLEncoding.EncodeToString(claimsJSON)
	signingInput := headerB64 + "." + claimsB64

	return signingInput + "." + sg.computeHMAC(signingInput), nil
}

func (sg *Signer) computeHMAC(input string) string {
	mac := hmac.New(sha256.New, sg.secret)
	mac.Write([]byte(input))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Validate parses and verifies token, returning its claims if the
// signature is valid, the algorithm is HS256, and it has not expired.
func (sg *Signer) Validate(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var header jwsHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil || header.Alg != "HS256" {
		return nil, ErrInvalidToken
	}

	expected := sg.computeHMAC(parts[0] + "." + parts[1])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[2])) != 1 {
		return nil, ErrInvalidToken
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, ErrInvalidToken
	}

	if time.Now().Unix() > claims.Expiry {
		return nil, ErrExpiredToken
	}

	return &claims, nil
}

const alphanumericAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomAlphanumeric(n int) string {
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphanumericAlphabet))))
		if err != nil {
			out[i] = alphanumericAlphabet[0]
			continue
		}
		out[i] = alphanumericAlphabet[idx.Int64()]
	}
	return string(out)
}
