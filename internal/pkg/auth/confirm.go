// Package auth signs and verifies registration confirmation tokens.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const confirmTokenType = "confirm"

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrBadSignature   = errors.New("invalid token signature")
	ErrExpiredToken   = errors.New("token expired")
)

// Signer issues HS256 tokens whose subject is the email being confirmed.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

type confirmClaims struct {
	Sub string `json:"sub"`
	Typ string `json:"typ"`
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp"`
	Jti string `json:"jti"`
}

// Issue builds and signs a confirmation token for email.
func (s *Signer) Issue(email string) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("confirmation token secret is not configured")
	}
	now := s.now()
	claims := confirmClaims{
		Sub: email,
		Typ: confirmTokenType,
		Iat: now.Unix(),
		Exp: now.Add(s.ttl).Unix(),
		Jti: randomTokenID(),
	}
	header := map[string]any{
		"alg": "HS256",
		"typ": "JWT",
	}
	headerJSON, _ := json.Marshal(header)
	payloadJSON, _ := json.Marshal(claims)
	enc := base64.RawURLEncoding
	unsigned := enc.EncodeToString(headerJSON) + "." + enc.EncodeToString(payloadJSON)
	return unsigned + "." + enc.EncodeToString(s.sign(unsigned)), nil
}

// Verify checks the signature and expiry and returns the confirmed email.
func (s *Signer) Verify(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", ErrMalformedToken
	}
	enc := base64.RawURLEncoding
	signature, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformedToken
	}
	if !hmac.Equal(signature, s.sign(parts[0]+"."+parts[1])) {
		return "", ErrBadSignature
	}
	payloadJSON, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformedToken
	}
	var claims confirmClaims
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return "", ErrMalformedToken
	}
	if claims.Typ != confirmTokenType || claims.Sub == "" {
		return "", ErrMalformedToken
	}
	if s.now().Unix() > claims.Exp {
		return "", ErrExpiredToken
	}
	return claims.Sub, nil
}

func (s *Signer) sign(unsigned string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(unsigned))
	return mac.Sum(nil)
}

func randomTokenID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
