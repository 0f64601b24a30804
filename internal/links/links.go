// Package links issues signed, expiring download links for stored evidence
// files so browsers can fetch them without the actor headers.
package links

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Claims struct {
	EvidenceID string `json:"eid"`
	Actor      string `json:"act"`
	Role       string `json:"role"`
	Nonce      string `json:"jti"`
	Exp        int64  `json:"exp"`
}

var (
	ErrInvalidLink = errors.New("invalid link")
	ErrExpiredLink = errors.New("expired link")
)

// Signer issues and verifies links with one secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a signer. An empty secret is replaced by a random one, so
// links only stay valid for the life of the process.
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Signer{secret: secret, ttl: ttl, now: time.Now}
}

// WithClock is used by tests.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

func (s *Signer) Issue(evidenceID, actor, role string) (string, time.Time, error) {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return "", time.Time{}, fmt.Errorf("link nonce: %w", err)
	}
	expires := s.now().Add(s.ttl)
	token, err := encode(s.secret, Claims{
		EvidenceID: evidenceID,
		Actor:      actor,
		Role:       role,
		Nonce:      hex.EncodeToString(nonce),
		Exp:        expires.Unix(),
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

func (s *Signer) Verify(token string) (Claims, error) {
	return decode(s.secret, token, s.now())
}

func encode(secret []byte, claims Claims) (string, error) {
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return payload + "." + sign(secret, payload), nil
}

func decode(secret []byte, token string, now time.Time) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Claims{}, ErrInvalidLink
	}
	payload, signature := parts[0], parts[1]

	if !hmac.Equal([]byte(signature), []byte(sign(secret, payload))) {
		return Claims{}, ErrInvalidLink
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidLink
	}
	var claims Claims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return Claims{}, ErrInvalidLink
	}
	if claims.EvidenceID == "" || claims.Nonce == "" || claims.Exp == 0 {
		return Claims{}, ErrInvalidLink
	}
	if now.Unix() >= claims.Exp {
		return Claims{}, ErrExpiredLink
	}
	return claims, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
